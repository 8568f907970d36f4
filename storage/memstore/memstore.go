// Package memstore is an in-memory implementation of storage.Database.
//
// Documents are kept as normalized bson.M values and decoded through the BSON codec,
// so models behave exactly as they do against MongoDB. Transactions are serialized:
// a transaction holds the store's write lock until it commits or rolls back.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/storage"
)

type txKey struct{}

// DB is safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	colls  map[string][]bson.M
	unique map[string][]string
	closed bool
}

var _ storage.Database = (*DB)(nil)

// New returns an empty store with the same unique keys the MongoDB indexes enforce.
func New() *DB {
	return &DB{
		colls: make(map[string][]bson.M),
		unique: map[string][]string{
			storage.Users:      {"externalId"},
			storage.Milestones: {"idempotencyKey"},
		},
	}
}

func (db *DB) Collection(name string) storage.Collection {
	return &collection{db: db, name: name}
}

func (db *DB) Ping(ctx context.Context) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return fmt.Errorf("memstore: closed")
	}
	return ctx.Err()
}

func (db *DB) Close(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// WithTransaction runs fn while holding the write lock. Every collection call made
// with the context passed to fn joins the transaction. If fn returns an error (or
// panics) all writes are rolled back.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if db.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := make(map[string][]bson.M, len(db.colls))
	for name, docs := range db.colls {
		snapshot[name] = append([]bson.M(nil), docs...)
	}

	defer func() {
		if r := recover(); r != nil {
			db.colls = snapshot
			panic(r)
		}
		if err != nil {
			db.colls = snapshot
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		return err
	}
	return ctx.Err()
}

func (db *DB) lock(ctx context.Context, write bool) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	if write {
		db.mu.Lock()
		return db.mu.Unlock
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

func (db *DB) checkUnique(name string, doc bson.M, skip int) error {
	return db.checkUniqueAgainst(name, db.colls[name], doc, skip)
}

// checkUniqueIn checks docs[i] against the rest of a pending version of the collection.
func (db *DB) checkUniqueIn(name string, docs []bson.M, i int) error {
	return db.checkUniqueAgainst(name, docs, docs[i], i)
}

func (db *DB) checkUniqueAgainst(name string, docs []bson.M, doc bson.M, skip int) error {
	for _, field := range db.unique[name] {
		v, ok := lookup(doc, field)
		if !ok || v == nil {
			continue
		}
		for i, other := range docs {
			if i == skip {
				continue
			}
			if ov, ok := lookup(other, field); ok && equal(ov, v) {
				return fmt.Errorf("%w: %s.%s", storage.ErrDuplicateKey, name, field)
			}
		}
	}
	return nil
}

type collection struct {
	db   *DB
	name string
}

func (c *collection) Name() string { return c.name }

func (c *collection) InsertOne(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, err
	}
	m, err := normalize(doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("encoding document: %w", err)
	}

	id, ok := m["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		id = primitive.NewObjectID()
		m["_id"] = id
	}

	unlock := c.db.lock(ctx, true)
	defer unlock()

	for _, existing := range c.db.colls[c.name] {
		if equal(existing["_id"], id) {
			return primitive.NilObjectID, fmt.Errorf("%w: %s._id", storage.ErrDuplicateKey, c.name)
		}
	}
	if err := c.db.checkUnique(c.name, m, -1); err != nil {
		return primitive.NilObjectID, err
	}
	c.db.colls[c.name] = append(c.db.colls[c.name], m)
	return id, nil
}

// indexOf returns the position of the first document matching filter, or -1.
func (c *collection) indexOf(filter bson.M) (int, error) {
	for i, doc := range c.db.colls[c.name] {
		ok, err := matches(doc, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func (c *collection) FindOne(ctx context.Context, filter bson.M, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := normalize(filter)
	if err != nil {
		return fmt.Errorf("encoding filter: %w", err)
	}

	unlock := c.db.lock(ctx, false)
	defer unlock()

	i, err := c.indexOf(f)
	if err != nil {
		return err
	}
	if i < 0 {
		return storage.ErrNoDocuments
	}
	return decode(c.db.colls[c.name][i], out)
}

func (c *collection) Find(ctx context.Context, filter bson.M, opts storage.FindOptions, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("memstore: Find expects a pointer to a slice, got %T", out)
	}
	f, err := normalize(filter)
	if err != nil {
		return fmt.Errorf("encoding filter: %w", err)
	}

	unlock := c.db.lock(ctx, false)
	var hits []bson.M
	for _, doc := range c.db.colls[c.name] {
		ok, err := matches(doc, f)
		if err != nil {
			unlock()
			return err
		}
		if ok {
			hits = append(hits, doc)
		}
	}
	unlock()

	if len(opts.Sort) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			for _, key := range opts.Sort {
				a, aok := lookup(hits[i], key.Key)
				b, bok := lookup(hits[j], key.Key)
				cmp := sortCompare(a, aok, b, bok)
				if dir, _ := toFloat(key.Value); dir < 0 {
					cmp = -cmp
				}
				if cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
	}
	if opts.Skip > 0 {
		if int(opts.Skip) >= len(hits) {
			hits = nil
		} else {
			hits = hits[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int(opts.Limit) < len(hits) {
		hits = hits[:opts.Limit]
	}

	slice := reflect.MakeSlice(rv.Elem().Type(), 0, len(hits))
	elemType := rv.Elem().Type().Elem()
	for _, doc := range hits {
		if len(opts.Projection) > 0 {
			doc = project(doc, opts.Projection)
		}
		elem := reflect.New(elemType)
		if err := decode(doc, elem.Interface()); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}
	rv.Elem().Set(slice)
	return nil
}

func (c *collection) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, fmt.Errorf("encoding filter: %w", err)
	}
	u, err := normalize(update)
	if err != nil {
		return 0, fmt.Errorf("encoding update: %w", err)
	}

	unlock := c.db.lock(ctx, true)
	defer unlock()

	i, err := c.indexOf(f)
	if err != nil || i < 0 {
		return 0, err
	}

	// Documents are copy-on-write so transaction snapshots stay intact.
	updated, err := normalize(c.db.colls[c.name][i])
	if err != nil {
		return 0, err
	}
	if err := applyUpdate(updated, u); err != nil {
		return 0, err
	}
	if err := c.db.checkUnique(c.name, updated, i); err != nil {
		return 0, err
	}

	docs := append([]bson.M(nil), c.db.colls[c.name]...)
	docs[i] = updated
	c.db.colls[c.name] = docs
	return 1, nil
}

func (c *collection) UpdateMany(ctx context.Context, filter bson.M, update bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, fmt.Errorf("encoding filter: %w", err)
	}
	u, err := normalize(update)
	if err != nil {
		return 0, fmt.Errorf("encoding update: %w", err)
	}

	unlock := c.db.lock(ctx, true)
	defer unlock()

	old := c.db.colls[c.name]
	docs := append([]bson.M(nil), old...)
	var changed []int
	for i, doc := range old {
		ok, err := matches(doc, f)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		updated, err := normalize(doc)
		if err != nil {
			return 0, err
		}
		if err := applyUpdate(updated, u); err != nil {
			return 0, err
		}
		docs[i] = updated
		changed = append(changed, i)
	}
	if len(changed) == 0 {
		return 0, nil
	}
	for _, i := range changed {
		if err := c.db.checkUniqueIn(c.name, docs, i); err != nil {
			return 0, err
		}
	}
	c.db.colls[c.name] = docs
	return int64(len(changed)), nil
}

func (c *collection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, fmt.Errorf("encoding filter: %w", err)
	}

	unlock := c.db.lock(ctx, true)
	defer unlock()

	i, err := c.indexOf(f)
	if err != nil || i < 0 {
		return 0, err
	}
	old := c.db.colls[c.name]
	docs := make([]bson.M, 0, len(old)-1)
	docs = append(docs, old[:i]...)
	docs = append(docs, old[i+1:]...)
	c.db.colls[c.name] = docs
	return 1, nil
}

func (c *collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, fmt.Errorf("encoding filter: %w", err)
	}

	unlock := c.db.lock(ctx, false)
	defer unlock()

	var n int64
	for _, doc := range c.db.colls[c.name] {
		ok, err := matches(doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func decode(doc bson.M, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding stored document: %w", err)
	}
	return bson.Unmarshal(raw, out)
}

// project keeps _id and the fields set to a truthy value in an inclusion projection.
func project(doc bson.M, projection bson.M) bson.M {
	out := bson.M{"_id": doc["_id"]}
	for field, v := range projection {
		if n, ok := toFloat(v); (ok && n == 0) || v == false {
			if field == "_id" {
				delete(out, "_id")
			}
			continue
		}
		if val, ok := lookup(doc, field); ok {
			out[field] = val
		}
	}
	return out
}
