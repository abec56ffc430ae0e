package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"nivaran.org/internal/ids"
	"nivaran.org/internal/obs"
	"nivaran.org/internal/session"
)

// LoginRequest is a tagged login variant. The caller picks the variant, so
// endpoint selection never depends on which optional fields happen to be
// filled in.
type LoginRequest interface {
	endpoint() string
}

// PetitionerLogin authenticates a petitioner.
type PetitionerLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (PetitionerLogin) endpoint() string { return "/api/login/petitioner" }

// OfficialLogin authenticates a department official.
type OfficialLogin struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
	EmployeeID string `json:"employeeId,omitempty"`
}

func (OfficialLogin) endpoint() string { return "/api/login/official" }

// AdminLogin authenticates an administrator.
type AdminLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	AdminID  string `json:"adminId"`
}

func (AdminLogin) endpoint() string { return "/api/admin/login" }

// Login authenticates against the variant's endpoint and, on success, hands
// the issued credential and profile to the session. The returned route is
// the role-specific landing target. Rejected credentials leave session
// state untouched.
func (c *Client) Login(ctx context.Context, lr LoginRequest) (session.Route, error) {
	payload, err := json.Marshal(lr)
	if err != nil {
		return "", fmt.Errorf("api: encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+lr.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("api: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", ids.New())

	resp, err := c.http.Do(req)
	if err != nil {
		obs.Logger().Warn("login call failed", zap.Error(err))
		return "", fmt.Errorf("%w: request could not be completed", ErrLoginRejected)
	}
	defer resp.Body.Close()

	var body struct {
		Token   string          `json:"token"`
		User    json.RawMessage `json:"user"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if msg == "" || decodeErr != nil {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: %s", ErrLoginRejected, msg)
	}
	if decodeErr != nil || body.Token == "" {
		return "", fmt.Errorf("%w: response carried no token", ErrLoginRejected)
	}

	route, err := c.session.Establish(body.Token, body.User)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoginRejected, err)
	}
	return route, nil
}
