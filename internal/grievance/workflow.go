package grievance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"nivaran.org/internal/api"
	"nivaran.org/internal/audit"
	"nivaran.org/internal/session"
)

var (
	// ErrRoleDenied indicates the current role may not issue workflow
	// commands. Only department officials drive transitions.
	ErrRoleDenied = errors.New("grievance: role may not issue workflow commands")

	// ErrIllegalTransition indicates the command does not apply to the
	// grievance's current status. No API call is made.
	ErrIllegalTransition = errors.New("grievance: illegal transition")

	// ErrDeclineReason indicates a decline without a reason.
	ErrDeclineReason = errors.New("grievance: decline reason is required")
)

// Text sent when the official supplies none of their own.
const (
	defaultProgressComment  = "Starting progress on grievance"
	defaultResolutionNote   = "Grievance resolved with attached document"
	resolutionDocumentField = "document"
)

// RoleSource reports the role held by the active session.
type RoleSource interface {
	Role() string
}

// Outcome reports where a successful transition landed: the bucket the
// caller should switch its view to, freshly fetched.
type Outcome struct {
	NextBucket Status
	Snapshot   Snapshot
}

// Document is a resolution attachment.
type Document struct {
	Filename string
	Content  io.Reader
}

// Workflow validates and issues status transition commands. It treats the
// server as the sole source of truth: after every successful command the
// destination bucket is re-fetched rather than mutated locally.
type Workflow struct {
	api   API
	store *Store
	roles RoleSource
}

// NewWorkflow wires the transition commands to a transport, a bucket store
// and the session's role.
func NewWorkflow(a API, store *Store, roles RoleSource) *Workflow {
	return &Workflow{api: a, store: store, roles: roles}
}

// Accept moves a pending grievance into the assigned bucket.
func (w *Workflow) Accept(ctx context.Context, g Grievance) (Outcome, error) {
	if err := w.gate(g, StatusPending); err != nil {
		return Outcome{}, err
	}

	_, err := w.api.Do(ctx, http.MethodPost, commandPath(g.ID, "accept"),
		api.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return Outcome{}, err
	}

	_ = audit.LogEvent(ctx, "grievance.accept", map[string]any{"grievance_id": g.ID})
	return w.settle(ctx, StatusAssigned)
}

// Decline removes a pending grievance from the department's queues. The
// reason is mandatory. reset, when given, returns the caller's UI to a
// neutral state (cleared reason text, closed prompt) before the result is
// reported, on success and failure alike.
func (w *Workflow) Decline(ctx context.Context, g Grievance, reason string, reset func()) (Outcome, error) {
	if reset != nil {
		defer reset()
	}

	if err := w.gate(g, StatusPending); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return Outcome{}, ErrDeclineReason
	}

	_, err := w.api.Do(ctx, http.MethodPost, commandPath(g.ID, "decline"),
		api.WithJSONBody(map[string]string{"reason": reason}),
		api.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return Outcome{}, err
	}

	_ = audit.LogEvent(ctx, "grievance.decline", map[string]any{"grievance_id": g.ID})
	// Declined items vanish from every bucket; re-fetch the source so the
	// caller's pending view drops the item.
	return w.settle(ctx, StatusPending)
}

// StartProgress moves an assigned grievance into the inProgress bucket.
// An empty comment is defaulted.
func (w *Workflow) StartProgress(ctx context.Context, g Grievance, comment string) (Outcome, error) {
	if err := w.gate(g, StatusAssigned); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(comment) == "" {
		comment = defaultProgressComment
	}

	_, err := w.api.Do(ctx, http.MethodPost, commandPath(g.ID, "start-progress"),
		api.WithJSONBody(map[string]string{"comment": comment}),
		api.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return Outcome{}, err
	}

	_ = audit.LogEvent(ctx, "grievance.start_progress", map[string]any{"grievance_id": g.ID})
	return w.settle(ctx, StatusInProgress)
}

// Resolve closes an inProgress grievance in two phases: the resolution
// document is uploaded first, and only on its success is the resolve
// command issued. An upload failure leaves the grievance inProgress with
// the resolve step never attempted.
func (w *Workflow) Resolve(ctx context.Context, g Grievance, message string, doc Document) (Outcome, error) {
	if err := w.gate(g, StatusInProgress); err != nil {
		return Outcome{}, err
	}
	if doc.Content == nil {
		return Outcome{}, errors.New("grievance: resolution document is required")
	}
	if strings.TrimSpace(message) == "" {
		message = defaultResolutionNote
	}

	body, contentType, err := api.NewMultipartBody(resolutionDocumentField, doc.Filename, doc.Content)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := w.api.Do(ctx, http.MethodPost, commandPath(g.ID, "upload-resolution"),
		api.WithMultipartBody(contentType, body)); err != nil {
		return Outcome{}, err
	}

	if _, err := w.api.Do(ctx, http.MethodPost, commandPath(g.ID, "resolve"),
		api.WithJSONBody(map[string]string{"resolution": message}),
		api.WithIdempotencyKey(uuid.NewString())); err != nil {
		return Outcome{}, err
	}

	_ = audit.LogEvent(ctx, "grievance.resolve", map[string]any{"grievance_id": g.ID})
	return w.settle(ctx, StatusResolved)
}

// gate applies the role check and the client-side legality table. The
// server stays authoritative; this is a UX layer, not a security boundary.
func (w *Workflow) gate(g Grievance, from Status) error {
	if !strings.EqualFold(w.roles.Role(), session.RoleOfficial) {
		return ErrRoleDenied
	}
	if g.ID == "" {
		return errors.New("grievance: missing grievance id")
	}
	if g.Status != from {
		return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, from, g.Status)
	}
	return nil
}

// settle re-fetches the bucket a successful transition landed in and
// reports it as the suggested active view.
func (w *Workflow) settle(ctx context.Context, dest Status) (Outcome, error) {
	snap, err := w.store.Refresh(ctx, dest)
	if err != nil {
		return Outcome{NextBucket: dest}, err
	}
	return Outcome{NextBucket: dest, Snapshot: snap}, nil
}

func commandPath(id, command string) string {
	return "/api/grievances/" + id + "/" + command
}
