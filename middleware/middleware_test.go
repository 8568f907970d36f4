package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/utils"
)

var secret = []byte("test-secret")

type stubResolver struct {
	user *models.User
	err  error
}

func (s stubResolver) Resolve(_ context.Context, claims *utils.Claims) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u := *s.user
	u.ExternalID = claims.Subject
	return &u, nil
}

func token(t *testing.T, key []byte, ttl time.Duration) string {
	t.Helper()
	tok, err := utils.GenerateToken(key, "ext-1", "Ana", "ana@example.com", "user", ttl)
	require.NoError(t, err)
	return tok
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	u := UserFrom(r.Context())
	if u == nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(u.ExternalID + ":" + string(u.Role)))
}

func TestAuthenticate(t *testing.T) {
	user := &models.User{Base: models.Base{ID: primitive.NewObjectID()}, Role: models.RoleAdmin}

	tests := []struct {
		name       string
		resolver   stubResolver
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing token",
			resolver:   stubResolver{user: user},
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:     "valid bearer header",
			resolver: stubResolver{user: user},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token(t, secret, time.Hour))
			},
			wantStatus: http.StatusOK,
			wantBody:   "ext-1:admin",
		},
		{
			name:     "query token",
			resolver: stubResolver{user: user},
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", token(t, secret, time.Hour))
				r.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
			wantBody:   "ext-1:admin",
		},
		{
			name:     "missing bearer prefix",
			resolver: stubResolver{user: user},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", token(t, secret, time.Hour))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:     "wrong key",
			resolver: stubResolver{user: user},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token(t, []byte("other"), time.Hour))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:     "expired",
			resolver: stubResolver{user: user},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token(t, secret, -time.Minute))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:     "directory failure",
			resolver: stubResolver{err: errors.New("db down")},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+token(t, secret, time.Hour))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Authenticate(secret, tt.resolver)(http.HandlerFunc(echoUser))
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"user", &models.User{Role: models.RoleUser}, http.StatusForbidden},
		{"admin", &models.User{Role: models.RoleAdmin}, http.StatusTeapot},
		{"super-admin", &models.User{Role: models.RoleSuperAdmin}, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusTeapot)
			}))
			req := httptest.NewRequest(http.MethodDelete, "/projects/x", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusTeapot, reached)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS("http://localhost:4200")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/milestones", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/milestones", nil))
	assert.True(t, called)
}

func TestInstrumentKeepsStatus(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Instrument)
	r.HandleFunc("/tasks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
