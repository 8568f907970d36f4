package handlers

import (
	"net/http"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/services"
)

// Filters lists the query parameters a list endpoint turns into exact-match
// conditions. Parameter names equal the stored field names.
type Filters struct {
	IDs   []string
	Text  []string
	Bools []string
}

func (f Filters) build(r *http.Request) (bson.M, error) {
	q := r.URL.Query()
	filter := bson.M{}
	for _, name := range f.IDs {
		if raw := q.Get(name); raw != "" {
			id, err := services.ParseID(raw)
			if err != nil {
				return nil, err
			}
			filter[name] = id
		}
	}
	for _, name := range f.Text {
		if raw := q.Get(name); raw != "" {
			filter[name] = raw
		}
	}
	for _, name := range f.Bools {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, &services.ValidationError{
					Message: name + " must be a boolean",
					Fields:  map[string]string{name: "must be a boolean"},
				}
			}
			filter[name] = v
		}
	}
	return filter, nil
}

// CrudHandler exposes a CrudService over REST.
type CrudHandler[T any, PT interface {
	*T
	models.Record
}] struct {
	Service *services.CrudService[T, PT]
	Filters Filters
}

func NewCrudHandler[T any, PT interface {
	*T
	models.Record
}](service *services.CrudService[T, PT], filters Filters) *CrudHandler[T, PT] {
	return &CrudHandler[T, PT]{Service: service, Filters: filters}
}

func (h *CrudHandler[T, PT]) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := h.Filters.build(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.Service.List(r.Context(), actor(r), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *CrudHandler[T, PT]) Create(w http.ResponseWriter, r *http.Request) {
	rec := PT(new(T))
	if err := decodeJSON(w, r, rec); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Service.Create(r.Context(), actor(r), rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CrudHandler[T, PT]) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.Service.Get(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *CrudHandler[T, PT]) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec := PT(new(T))
	if err := decodeJSON(w, r, rec); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Service.Update(r.Context(), actor(r), id, rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *CrudHandler[T, PT]) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Record deleted successfully")
}
