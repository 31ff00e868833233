package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerDefaults(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has("student", PermAttemptStart))
	assert.True(t, c.Has("student", PermAttemptReview))
	assert.False(t, c.Has("student", PermReportView))
	assert.True(t, c.Has("teacher", PermReportView))
	assert.False(t, c.Has("teacher", PermAttemptSubmit))
	assert.True(t, c.Has("admin", PermInstanceWrite))
	assert.False(t, c.Has("guest", PermExamListOwn))

	assert.True(t, c.Unrestricted("admin"))
	assert.False(t, c.Unrestricted("teacher"))
	assert.False(t, c.Unrestricted("student"))
}

func TestCheckerFamilies(t *testing.T) {
	c := NewChecker(map[string][]string{"grader": {"attempt:*"}})
	assert.True(t, c.Has("grader", "attempt:review"))
	assert.False(t, c.Has("grader", "attempts"))
	assert.False(t, c.Has("grader", PermReportView))
	assert.False(t, c.Unrestricted("grader"))
}

func TestUnrestrictedFromContext(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Unrestricted(ctx))
	assert.True(t, Unrestricted(WithRole(ctx, "admin")))
	assert.False(t, Unrestricted(WithRole(ctx, "teacher")))
}

func TestRequire(t *testing.T) {
	h := Require(PermReportView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, code := range map[string]int{
		"teacher": http.StatusNoContent,
		"admin":   http.StatusNoContent,
		"student": http.StatusForbidden,
		"":        http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, code, rec.Code, role)
		if code == http.StatusForbidden {
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), role)
			assert.Equal(t, "forbidden", body.Error.Code)
			assert.Contains(t, body.Error.Message, PermReportView)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		}
	}
}
