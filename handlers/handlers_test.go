package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/net/websocket"

	"github.com/nls08/NLS-Portal-sub001/clients"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/realtime"
	"github.com/nls08/NLS-Portal-sub001/services"
	"github.com/nls08/NLS-Portal-sub001/storage/memstore"
	"github.com/nls08/NLS-Portal-sub001/utils"
)

var testSecret = []byte("handler-secret")

const webhookSecret = "hook-secret"

type testEnv struct {
	handler http.Handler
	hub     *realtime.Hub
	admin   string
	user    string
	other   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := memstore.New()
	hub := realtime.NewHub(16, time.Second)
	t.Cleanup(hub.Close)

	tx := services.NewTxRunner(db, 5*time.Second, 3)
	deps := Deps{
		DB:            db,
		JWTSecret:     testSecret,
		WebhookSecret: webhookSecret,
		CORSOrigin:    "*",
		Users:         services.NewUserService(db),
		Projects:      services.NewProjectService(db, tx, hub),
		Milestones:    services.NewMilestoneService(db, tx, hub),
		Tasks:         services.NewTaskService(db, hub, clients.LogMailer{}, clients.NopObjectStore{}),
		Dashboard:     services.NewDashboardService(db),
		Delivery:      services.NewDeliveryService(db),
		Finance:       services.NewFinanceService(db),
		Records:       services.NewRecords(db, hub),
		Hub:           hub,
	}
	return &testEnv{
		handler: NewRouter(deps),
		hub:     hub,
		admin:   mint(t, "ext-admin", "admin"),
		user:    mint(t, "ext-user", "user"),
		other:   mint(t, "ext-other", "user"),
	}
}

func mint(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, sub, sub, sub+"@example.com", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createProject(t *testing.T, name string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/projects", e.admin, map[string]interface{}{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]interface{}](t, rec)["id"].(string)
}

func (e *testEnv) me(t *testing.T, token string) models.User {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[models.User](t, rec)
}

func TestHealthAndPreflight(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodOptions, "/milestones", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthorizationGate(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"no token", http.MethodGet, "/projects", "", nil, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/projects", "not-a-jwt", nil, http.StatusUnauthorized},
		{"user lists projects", http.MethodGet, "/projects", env.user, nil, http.StatusOK},
		{"user creates project", http.MethodPost, "/projects", env.user, map[string]string{"name": "x"}, http.StatusForbidden},
		{"user creates milestone", http.MethodPost, "/milestones", env.user, map[string]string{"name": "x"}, http.StatusForbidden},
		{"user reads finance", http.MethodGet, "/finance/summary", env.user, nil, http.StatusForbidden},
		{"user lists donations", http.MethodGet, "/donations", env.user, nil, http.StatusForbidden},
		{"user writes kpi", http.MethodPost, "/kpis", env.user, map[string]string{}, http.StatusForbidden},
		{"user reads kpis", http.MethodGet, "/kpis", env.user, nil, http.StatusOK},
		{"admin reads finance", http.MethodGet, "/finance/summary", env.admin, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestMilestoneWireContract(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.createProject(t, "Portal")

	rec := env.do(t, http.MethodPost, "/milestones", env.admin, map[string]interface{}{
		"name": "Design", "project": projectID, "type": "client",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]interface{}](t, rec)
	milestoneID := created["id"].(string)
	project := created["project"].(map[string]interface{})
	assert.Equal(t, "Portal", project["name"])
	assert.Equal(t, projectID, project["id"])

	rec = env.do(t, http.MethodGet, "/projects/"+projectID, env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{milestoneID}, decode[map[string]interface{}](t, rec)["clientMilestones"])

	missing := primitive.NewObjectID().Hex()
	rec = env.do(t, http.MethodPost, "/milestones", env.admin, map[string]interface{}{"name": "x", "project": missing})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"error":"project %s not found"}`, missing), rec.Body.String())

	rec = env.do(t, http.MethodPost, "/milestones", env.admin, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/milestones", env.admin, map[string]interface{}{"project": projectID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Fields, "name")

	rec = env.do(t, http.MethodPut, "/milestones/"+milestoneID, env.admin, map[string]interface{}{"project": missing})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/milestones/"+primitive.NewObjectID().Hex(), env.admin, map[string]interface{}{"name": "y"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/milestones/not-an-id", env.admin, map[string]interface{}{"name": "y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/milestones/"+milestoneID, env.admin, map[string]interface{}{"status": "in-progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in-progress", decode[map[string]interface{}](t, rec)["status"])

	rec = env.do(t, http.MethodDelete, "/projects/"+projectID, env.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, "/milestones/"+milestoneID, env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Milestone deleted successfully"}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/milestones/"+milestoneID, env.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMilestoneIdempotencyHeader(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.createProject(t, "Portal")
	body := map[string]interface{}{"name": "Kickoff", "project": projectID}

	first := env.do(t, http.MethodPost, "/milestones", env.admin, body, "Idempotency-Key", "abc-123")
	second := env.do(t, http.MethodPost, "/milestones", env.admin, body, "Idempotency-Key", "abc-123")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	rec := env.do(t, http.MethodGet, "/milestones?project="+projectID, env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]interface{}](t, rec), 1)
}

func TestTaskRoutes(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.createProject(t, "Portal")
	user := env.me(t, env.user)
	env.me(t, env.other)

	rec := env.do(t, http.MethodPost, "/tasks", env.admin, map[string]interface{}{
		"title": "Login page", "project": projectID, "assignee": []string{user.ID.Hex()},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	taskID := decode[map[string]interface{}](t, rec)["id"].(string)

	rec = env.do(t, http.MethodPut, "/tasks/"+taskID+"/status", env.other, map[string]string{"status": "in-progress"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/tasks/"+taskID+"/status", env.user, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/tasks/"+taskID+"/status", env.user, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/tasks/"+taskID, env.user, map[string]string{"title": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/tasks/"+taskID+"/submit", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in-review", decode[map[string]interface{}](t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/tasks/"+taskID+"/review", env.admin, map[string]interface{}{"approved": false})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/tasks/"+taskID+"/review", env.admin, map[string]interface{}{"approved": true, "comment": "ship it"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decode[map[string]interface{}](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/tasks?assignee="+user.ID.Hex()+"&limit=10", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]interface{}](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/tasks?page=-1", env.user, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/dashboard/stats", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.DashboardStats](t, rec)
	require.Len(t, stats.ProjectProgress, 1)
	assert.Equal(t, 100, stats.ProjectProgress[0].Progress)
}

func TestOwnerScopedRecords(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/personal-tasks", env.user, map[string]interface{}{"title": "read book"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[map[string]interface{}](t, rec)["id"].(string)

	rec = env.do(t, http.MethodGet, "/personal-tasks/"+id, env.other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/personal-tasks?done=false", env.user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]interface{}](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/personal-tasks?done=maybe", env.user, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/personal-tasks/"+id, env.user, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityWebhook(t *testing.T) {
	env := newTestEnv(t)
	event := map[string]interface{}{
		"type": "user.created",
		"data": map[string]string{"id": "ext-new", "name": "New Person", "email": "new@example.com"},
	}

	rec := env.do(t, http.MethodPost, "/webhooks/identity", "", event, "X-Webhook-Secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/webhooks/identity", "", event, "X-Webhook-Secret", webhookSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/users", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	for _, u := range decode[[]map[string]interface{}](t, rec) {
		names = append(names, u["name"].(string))
	}
	assert.Contains(t, names, "New Person")
}

func TestRoleChangeRoute(t *testing.T) {
	env := newTestEnv(t)
	user := env.me(t, env.user)

	rec := env.do(t, http.MethodPut, "/users/"+user.ID.Hex()+"/role", env.admin, map[string]string{"role": "super-admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/users/"+user.ID.Hex()+"/role", env.admin, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleAdmin, env.me(t, env.user).Role)
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &services.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{"project missing", &services.ProjectNotFoundError{ID: primitive.NewObjectID()}, http.StatusBadRequest},
		{"invalid id", fmt.Errorf("x: %w", services.ErrInvalidID), http.StatusBadRequest},
		{"not found", fmt.Errorf("task: %w", services.ErrNotFound), http.StatusNotFound},
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"conflict", fmt.Errorf("busy: %w", services.ErrConflict), http.StatusConflict},
		{"tx conflict", fmt.Errorf("milestone.create: %w", services.ErrTxConflict), http.StatusServiceUnavailable},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret detail"))
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("x: %w", services.ErrTxConflict))
	assert.JSONEq(t, `{"error":"transaction conflict, retry"}`, rec.Body.String())
}

func TestWebsocketReceivesMilestoneEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	projectID := env.createProject(t, "Portal")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + env.user
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	dec := json.NewDecoder(conn)
	require.NoError(t, json.NewEncoder(conn).Encode(map[string]string{"type": "ping"}))
	var pong map[string]interface{}
	require.NoError(t, dec.Decode(&pong))
	require.Equal(t, "pong", pong["type"])

	rec := env.do(t, http.MethodPost, "/milestones", env.admin, map[string]interface{}{"name": "Live", "project": projectID})
	require.Equal(t, http.StatusCreated, rec.Code)

	var ev map[string]interface{}
	require.NoError(t, dec.Decode(&ev))
	assert.Equal(t, models.EventMilestoneCreated, ev["type"])
	milestone := ev["milestone"].(map[string]interface{})
	assert.Equal(t, "Live", milestone["name"])
}
