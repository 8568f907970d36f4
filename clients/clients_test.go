package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nls08/NLS-Portal-sub001/models"
)

func TestObjectStoreDelete(t *testing.T) {
	var gotPath, gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth, gotMethod = r.URL.EscapedPath(), r.Header.Get("Authorization"), r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewObjectStoreClient(srv.URL+"/", "tok", srv.Client())
	require.NoError(t, c.Delete(context.Background(), "tasks/a b.png"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/tasks%2Fa%20b.png", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestObjectStoreNotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewObjectStoreClient(srv.URL, "", srv.Client()).Delete(context.Background(), "k"))
}

func TestObjectStoreBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewObjectStoreClient(srv.URL, "", srv.Client())
	for i := 0; i < 4; i++ {
		assert.Error(t, c.Delete(context.Background(), "k"))
	}
	err := c.Delete(context.Background(), "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestWithAddress(t *testing.T) {
	got := withAddress([]models.UserRef{{Name: "a", Email: "a@x.io"}, {Name: "b"}})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
	assert.NoError(t, LogMailer{}.Send(context.Background(), got, "s", "b"))
}
