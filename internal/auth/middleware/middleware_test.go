package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

func TestJWTMiddlewareSetsIdentity(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("s1", "student")
	require.NoError(t, err)

	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", sub)
	assert.Equal(t, "student", role)
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := NewAuthService("test-secret")
	other, err := NewAuthService("other").IssueJWT("s1", "student")
	require.NoError(t, err)

	expired := NewAuthService("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	old, err := expired.IssueJWT("s1", "student")
	require.NoError(t, err)

	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	for _, hdr := range []string{"", "Token x", "Bearer garbage", "Bearer " + other, "Bearer " + old} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, hdr)
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := NewAuthService("test-secret")
	h := LoginHandler(a, LocalLogin{AdminUser: "admin", AdminPassHash: string(hash)})

	tests := []struct {
		body string
		code int
		role string
	}{
		{body: `{"username":"admin","password":"s3cret"}`, code: http.StatusOK, role: "admin"},
		{body: `{"username":"admin","password":"admin","role":"teacher"}`, code: http.StatusUnauthorized},
		{body: `{"username":"t1","password":"t1","role":"teacher"}`, code: http.StatusOK, role: "teacher"},
		{body: `{"username":"s1","password":"nope","role":"student"}`, code: http.StatusUnauthorized},
		{body: `{"username":"s1","password":"s1","role":"admin"}`, code: http.StatusUnauthorized},
		{body: `not json`, code: http.StatusBadRequest},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body)))
		require.Equal(t, tc.code, rec.Code, tc.body)
		if tc.role != "" {
			assert.Contains(t, rec.Body.String(), `"role":"`+tc.role+`"`)
		}
	}
}
