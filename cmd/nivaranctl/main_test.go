package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func mintToken(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"id": "off-3", "role": role, "exp": exp.Unix()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

// newBackend serves official login and the Electricity pending bucket, the
// minimum surface a login-then-list session touches.
func newBackend(t *testing.T, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login/official", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email      string `json:"email"`
			Password   string `json:"password"`
			Department string `json:"department"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"user":  map[string]string{"role": "official", "department": req.Department, "email": req.Email},
		})
	})

	mux.HandleFunc("/api/grievances/department/Electricity/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "TOKEN_INVALID"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"grievances": []map[string]any{
				{"_id": "g1", "petitionId": "GRV-101", "title": "Transformer sparking", "status": "pending", "priority": "high"},
			},
			"stats": map[string]int{"pending": 1, "assigned": 0, "inProgress": 0, "resolved": 0},
		})
	})

	return httptest.NewServer(mux)
}

// runCLI executes one command the way a fresh process invocation would:
// a new app wired from the environment, state carried via the state dir.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoginThenListFlow(t *testing.T) {
	tok := mintToken(t, "official", time.Now().Add(time.Hour))
	srv := newBackend(t, tok)
	defer srv.Close()

	t.Setenv("NIVARAN_API_ORIGIN", srv.URL)
	t.Setenv("NIVARAN_STATE_DIR", t.TempDir())
	t.Setenv("NIVARAN_ENV", "development")

	out, err := runCLI(t, "login",
		"--role", "official",
		"--email", "o@electricity.gov",
		"--password", "secret",
		"--department", "Electricity")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, "/official/electricity") {
		t.Fatalf("login output missing landing route:\n%s", out)
	}

	// No --department: the department must come from the restored profile.
	out, err = runCLI(t, "list", "pending")
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Transformer sparking") || !strings.Contains(out, "GRV-101") {
		t.Fatalf("list output missing the grievance:\n%s", out)
	}
	if !strings.Contains(out, "pending 1") {
		t.Fatalf("list output missing stats:\n%s", out)
	}

	out, err = runCLI(t, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v\n%s", err, out)
	}
	if !strings.Contains(out, "official") {
		t.Fatalf("whoami output missing role:\n%s", out)
	}

	out, err = runCLI(t, "logout")
	if err != nil {
		t.Fatalf("logout: %v\n%s", err, out)
	}
	if !strings.Contains(out, "/login/official") {
		t.Fatalf("logout output missing login route:\n%s", out)
	}

	// With the session gone and no override, list has no department to use.
	if _, err = runCLI(t, "list", "pending"); err == nil {
		t.Fatalf("list must fail without a session or --department")
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	tok := mintToken(t, "official", time.Now().Add(time.Hour))
	srv := newBackend(t, tok)
	defer srv.Close()

	t.Setenv("NIVARAN_API_ORIGIN", srv.URL)
	t.Setenv("NIVARAN_STATE_DIR", t.TempDir())
	t.Setenv("NIVARAN_ENV", "development")

	_, err := runCLI(t, "login",
		"--role", "official",
		"--email", "o@electricity.gov",
		"--password", "wrong",
		"--department", "Electricity")
	if err == nil {
		t.Fatalf("expected rejected credentials to fail the command")
	}
	if !strings.Contains(err.Error(), "login rejected") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListUnknownBucket(t *testing.T) {
	tok := mintToken(t, "official", time.Now().Add(time.Hour))
	srv := newBackend(t, tok)
	defer srv.Close()

	t.Setenv("NIVARAN_API_ORIGIN", srv.URL)
	t.Setenv("NIVARAN_STATE_DIR", t.TempDir())
	t.Setenv("NIVARAN_ENV", "development")

	if _, err := runCLI(t, "list", "archived", "--department", "Electricity"); err == nil {
		t.Fatalf("expected an unknown bucket to be rejected")
	}
}
