package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/middleware"
	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/services"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Warnf("Event ID: RESPONSE_ENCODE_FAILED, Description: Failed to encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeError maps service errors onto status codes. Unknown errors are logged and
// hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	var pnf *services.ProjectNotFoundError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &pnf):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: pnf.Error()})
	case errors.Is(err, services.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, services.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, services.ErrTxConflict), storage.IsTransient(err):
		logging.Logger.Warnf("Event ID: TX_CONFLICT, Description: %s %s gave up after retries: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: services.ErrTxConflict.Error()})
	default:
		logging.Logger.Errorf("Event ID: INTERNAL_ERROR, Description: %s %s failed: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &services.ValidationError{Message: "request body is empty"}
		}
		return &services.ValidationError{Message: "Invalid request payload"}
	}
	return nil
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	return services.ParseID(mux.Vars(r)[name])
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &services.ValidationError{
			Message: name + " must be a non-negative integer",
			Fields:  map[string]string{name: "must be a non-negative integer"},
		}
	}
	return n, nil
}

func pageOf(r *http.Request) (services.Page, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return services.Page{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return services.Page{}, err
	}
	return services.Page{Page: page, Limit: limit}, nil
}

// actor returns the authenticated caller. Routes are mounted behind Authenticate,
// so a missing user is a wiring bug.
func actor(r *http.Request) *models.User {
	if u := middleware.UserFrom(r.Context()); u != nil {
		return u
	}
	return &models.User{}
}
