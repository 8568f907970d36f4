package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/models"
	"github.com/nls08/NLS-Portal-sub001/storage"
	"github.com/nls08/NLS-Portal-sub001/storage/memstore"
)

type recordingHub struct {
	mu     sync.Mutex
	events []models.Event
}

func (h *recordingHub) Broadcast(e models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHub) Notify(_ string, e models.Event) { h.Broadcast(e) }

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

// faultyDB injects errors into a wrapped store.
type faultyDB struct {
	storage.Database
	failUpdate func(coll string, filter, update bson.M) error
	failTx     func(attempt int) error
	afterCount func(ctx context.Context, coll string)

	mu       sync.Mutex
	attempts int
}

func (f *faultyDB) Collection(name string) storage.Collection {
	return &faultyColl{Collection: f.Database.Collection(name), db: f}
}

func (f *faultyDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.attempts++
	attempt := f.attempts
	f.mu.Unlock()

	return f.Database.WithTransaction(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		if f.failTx != nil {
			return f.failTx(attempt)
		}
		return nil
	})
}

type faultyColl struct {
	storage.Collection
	db *faultyDB
}

func (c *faultyColl) UpdateOne(ctx context.Context, filter, update bson.M) (int64, error) {
	if c.db.failUpdate != nil {
		if err := c.db.failUpdate(c.Name(), filter, update); err != nil {
			return 0, err
		}
	}
	return c.Collection.UpdateOne(ctx, filter, update)
}

func (c *faultyColl) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	n, err := c.Collection.CountDocuments(ctx, filter)
	if err == nil && c.db.afterCount != nil {
		c.db.afterCount(ctx, c.Name())
	}
	return n, err
}

func newTx(db storage.Database) *TxRunner {
	r := NewTxRunner(db, 5*time.Second, 3)
	r.backoff = time.Millisecond
	return r
}

func seedUser(t *testing.T, db storage.Database, name string, role models.Role) *models.User {
	t.Helper()
	u := models.User{ExternalID: "ext-" + name, Name: name, Email: name + "@example.com", Role: role}
	u.Stamp(time.Now().UTC())
	id, err := db.Collection(storage.Users).InsertOne(context.Background(), u)
	require.NoError(t, err)
	u.ID = id
	return &u
}

func seedProject(t *testing.T, db storage.Database, name string) primitive.ObjectID {
	t.Helper()
	p := models.Project{
		Name:             name,
		Status:           models.ProjectInProgress,
		Milestones:       []primitive.ObjectID{},
		ClientMilestones: []primitive.ObjectID{},
		Members:          []primitive.ObjectID{},
	}
	p.Stamp(time.Now().UTC())
	id, err := db.Collection(storage.Projects).InsertOne(context.Background(), p)
	require.NoError(t, err)
	return id
}

func loadProject(t *testing.T, db storage.Database, id primitive.ObjectID) models.Project {
	t.Helper()
	var p models.Project
	require.NoError(t, db.Collection(storage.Projects).FindOne(context.Background(), bson.M{"_id": id}, &p))
	return p
}

func countOf(ids []primitive.ObjectID, id primitive.ObjectID) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}

func newMemDB() *memstore.DB { return memstore.New() }
