// Package grievance models the case-tracking domain: the grievance record,
// its status lifecycle, the per-status cached views, and the role-gated
// transition commands.
package grievance

import (
	"fmt"
	"time"
)

// Status is a grievance's position in the workflow. Transitions move
// forward only; the decline branch removes the item from the tracked
// buckets entirely.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "inProgress"
	StatusResolved   Status = "resolved"
)

// Buckets lists the tracked statuses in workflow order.
var Buckets = []Status{StatusPending, StatusAssigned, StatusInProgress, StatusResolved}

// Valid reports whether s names a tracked bucket.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// ParseStatus maps a user-supplied bucket name to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("grievance: unknown bucket %q", s)
	}
	return st, nil
}

// Priority of a grievance as triaged by the department.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// UserRef identifies a user attached to a grievance.
type UserRef struct {
	ID    string `json:"_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Resolution is the outcome recorded when a grievance is resolved.
type Resolution struct {
	Text        string `json:"text,omitempty"`
	DocumentRef string `json:"document,omitempty"`
}

// Grievance is one tracked case. AssignedTo is set exactly when the status
// is assigned, inProgress or resolved; Resolution exactly when resolved.
type Grievance struct {
	ID          string      `json:"_id"`
	PetitionID  string      `json:"petitionId,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      Status      `json:"status"`
	Priority    Priority    `json:"priority,omitempty"`
	AssignedTo  *UserRef    `json:"assignedTo,omitempty"`
	Petitioner  UserRef     `json:"petitioner"`
	CreatedAt   time.Time   `json:"createdAt"`
	Resolution  *Resolution `json:"resolution,omitempty"`
}

// Stats are the per-bucket totals as last reported by the server.
type Stats struct {
	Pending    int `json:"pending"`
	Assigned   int `json:"assigned"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
}
