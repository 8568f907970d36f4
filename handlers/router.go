package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nls08/NLS-Portal-sub001/middleware"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/realtime"
	"github.com/nls08/NLS-Portal-sub001/services"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// Deps carries everything the router needs.
type Deps struct {
	DB            storage.Database
	JWTSecret     []byte
	WebhookSecret string
	CORSOrigin    string

	Users      *services.UserService
	Projects   *services.ProjectService
	Milestones *services.MilestoneService
	Tasks      *services.TaskService
	Dashboard  *services.DashboardService
	Delivery   *services.DeliveryService
	Finance    *services.FinanceService
	Records    *services.Records
	Hub        *realtime.Hub
}

// access marks which operations of a collection are reserved for administrators.
type access struct {
	read, create, modify bool
}

var (
	openToAll  = access{}
	adminWrite = access{create: true, modify: true}
	adminOnly  = access{read: true, create: true, modify: true}
)

func guard(admin bool, h http.HandlerFunc) http.Handler {
	if admin {
		return middleware.RequireAdmin(h)
	}
	return h
}

func mountCrud[T any, PT interface {
	*T
	models.Record
}](r *mux.Router, path string, h *CrudHandler[T, PT], a access) {
	r.Handle(path, guard(a.read, h.List)).Methods(http.MethodGet)
	r.Handle(path, guard(a.create, h.Create)).Methods(http.MethodPost)
	r.Handle(path+"/{id}", guard(a.read, h.Get)).Methods(http.MethodGet)
	r.Handle(path+"/{id}", guard(a.modify, h.Update)).Methods(http.MethodPut)
	r.Handle(path+"/{id}", guard(a.modify, h.Delete)).Methods(http.MethodDelete)
}

// NewRouter wires every route. The returned handler applies CORS before routing so
// preflight requests never reach authentication.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Instrument)

	r.HandleFunc("/health", health(d.DB)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	webhooks := NewWebhookHandler(d.Users, d.WebhookSecret)
	r.HandleFunc("/webhooks/identity", webhooks.Identity).Methods(http.MethodPost)

	api := r.NewRoute().Subrouter()
	api.Use(middleware.Authenticate(d.JWTSecret, d.Users))

	api.Handle("/ws", realtime.Handler(d.Hub, identityOf))

	users := NewUserHandler(d.Users)
	api.HandleFunc("/users/me", users.Me).Methods(http.MethodGet)
	api.HandleFunc("/users/me", users.UpdateMe).Methods(http.MethodPut)
	api.HandleFunc("/users", users.List).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", users.Get).Methods(http.MethodGet)
	api.Handle("/users/{id}/role", guard(true, users.SetRole)).Methods(http.MethodPut)

	projects := NewProjectHandler(d.Projects)
	api.HandleFunc("/projects", projects.List).Methods(http.MethodGet)
	api.Handle("/projects", guard(true, projects.Create)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}", projects.Get).Methods(http.MethodGet)
	api.Handle("/projects/{id}", guard(true, projects.Update)).Methods(http.MethodPut)
	api.Handle("/projects/{id}", guard(true, projects.Delete)).Methods(http.MethodDelete)

	milestones := NewMilestoneHandler(d.Milestones)
	api.HandleFunc("/milestones", milestones.List).Methods(http.MethodGet)
	api.Handle("/milestones", guard(true, milestones.Create)).Methods(http.MethodPost)
	api.HandleFunc("/milestones/{id}", milestones.Get).Methods(http.MethodGet)
	api.Handle("/milestones/{id}", guard(true, milestones.Update)).Methods(http.MethodPut)
	api.Handle("/milestones/{id}", guard(true, milestones.Delete)).Methods(http.MethodDelete)

	tasks := NewTaskHandler(d.Tasks)
	api.HandleFunc("/tasks", tasks.List).Methods(http.MethodGet)
	api.Handle("/tasks", guard(true, tasks.Create)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", tasks.Get).Methods(http.MethodGet)
	api.Handle("/tasks/{id}", guard(true, tasks.Update)).Methods(http.MethodPut)
	api.Handle("/tasks/{id}", guard(true, tasks.Delete)).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{id}/status", tasks.UpdateStatus).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}/submit", tasks.Submit).Methods(http.MethodPost)
	api.Handle("/tasks/{id}/review", guard(true, tasks.Review)).Methods(http.MethodPost)
	api.Handle("/tasks/{id}/attachments/{key}", guard(true, tasks.RemoveAttachment)).Methods(http.MethodDelete)

	reports := NewReportHandler(d.Dashboard, d.Delivery, d.Finance)
	api.HandleFunc("/dashboard/stats", reports.DashboardStats).Methods(http.MethodGet)
	api.HandleFunc("/deliveries", reports.Deliveries).Methods(http.MethodGet)
	api.Handle("/finance/summary", guard(true, reports.FinanceSummary)).Methods(http.MethodGet)

	rec := d.Records
	mountCrud(api, "/attendance", NewCrudHandler(rec.Attendance, Filters{IDs: []string{"user"}, Text: []string{"status"}}), openToAll)
	mountCrud(api, "/redzones", NewCrudHandler(rec.RedZones, Filters{IDs: []string{"project", "user"}, Text: []string{"severity"}, Bools: []string{"resolved"}}), adminWrite)
	mountCrud(api, "/performance", NewCrudHandler(rec.Performance, Filters{IDs: []string{"user"}, Text: []string{"period"}}), adminWrite)
	mountCrud(api, "/kpis", NewCrudHandler(rec.Kpis, Filters{IDs: []string{"user"}, Text: []string{"period"}}), adminWrite)
	mountCrud(api, "/feedback", NewCrudHandler(rec.Feedback, Filters{IDs: []string{"project"}, Text: []string{"category"}}), access{modify: true})
	mountCrud(api, "/personal-tasks", NewCrudHandler(rec.PersonalTasks, Filters{Bools: []string{"done"}}), openToAll)
	mountCrud(api, "/reminders", NewCrudHandler(rec.Reminders, Filters{Bools: []string{"done"}}), openToAll)
	mountCrud(api, "/donations", NewCrudHandler(rec.Donations, Filters{}), adminOnly)
	mountCrud(api, "/expenses", NewCrudHandler(rec.Expenses, Filters{IDs: []string{"project"}, Text: []string{"category"}}), adminOnly)
	mountCrud(api, "/earnings", NewCrudHandler(rec.Earnings, Filters{IDs: []string{"project"}}), adminOnly)
	mountCrud(api, "/advances", NewCrudHandler(rec.Advances, Filters{IDs: []string{"user"}, Bools: []string{"repaid"}}), adminOnly)

	return middleware.CORS(d.CORSOrigin)(r)
}

// identityOf pins the authenticated user on a realtime connection.
func identityOf(r *http.Request) (realtime.Identity, bool) {
	u := middleware.UserFrom(r.Context())
	if u == nil {
		return realtime.Identity{}, false
	}
	return realtime.Identity{UserID: u.ID.Hex(), Name: u.Name}, true
}

func health(db storage.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
