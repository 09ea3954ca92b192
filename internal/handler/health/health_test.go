package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jazzify/rhythmcore/internal/handler/health"
)

func ok(context.Context) error { return nil }

func failing(msg string) health.CheckerFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]health.Checker
		wantStatus int
		wantReport string
		wantChecks map[string]string
	}{
		{
			name:       "no backends",
			checks:     map[string]health.Checker{},
			wantStatus: http.StatusOK,
			wantReport: "ok",
			wantChecks: map[string]string{},
		},
		{
			name: "all healthy",
			checks: map[string]health.Checker{
				"libsql": health.CheckerFunc(ok),
				"redis":  health.CheckerFunc(ok),
			},
			wantStatus: http.StatusOK,
			wantReport: "ok",
			wantChecks: map[string]string{"libsql": "ok", "redis": "ok"},
		},
		{
			name: "database locked",
			checks: map[string]health.Checker{
				"libsql": failing("locked"),
				"redis":  health.CheckerFunc(ok),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantReport: "degraded",
			wantChecks: map[string]string{"libsql": "error", "redis": "ok"},
		},
		{
			name: "leaderboard unreachable",
			checks: map[string]health.Checker{
				"libsql": health.CheckerFunc(ok),
				"redis":  failing("refused"),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantReport: "degraded",
			wantChecks: map[string]string{"libsql": "ok", "redis": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(slog.Default(), tt.checks)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body struct {
				Status string
				Checks map[string]struct{ Status string }
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if body.Status != tt.wantReport {
				t.Errorf("report status = %q, want %q", body.Status, tt.wantReport)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("got %d checks, want %d", len(body.Checks), len(tt.wantChecks))
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name].Status; got != want {
					t.Errorf("%s status = %q, want %q", name, got, want)
				}
			}
		})
	}
}
