package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/nls08/NLS-Portal-sub001/models"
)

type fakeSink struct {
	frames chan []byte
	block  chan struct{}
	fail   bool

	mu     sync.Mutex
	closed bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{frames: make(chan []byte, 16)}
}

func (s *fakeSink) Write(p []byte) (int, error) {
	if s.block != nil {
		<-s.block
	}
	if s.fail {
		return 0, errors.New("broken pipe")
	}
	s.frames <- append([]byte(nil), p...)
	return len(p), nil
}

func (s *fakeSink) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func receive(t *testing.T, s *fakeSink) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-s.frames:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func assertSilent(t *testing.T, s *fakeSink) {
	t.Helper()
	select {
	case raw := <-s.frames:
		t.Fatalf("unexpected frame %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastReachesOnlyRegisteredPeers(t *testing.T) {
	hub := NewHub(4, time.Second)
	defer hub.Close()

	early := newFakeSink()
	hub.Connect(early)

	hub.Broadcast(models.NewEvent(models.EventMilestoneDeleted, "id", "m1"))

	late := newFakeSink()
	hub.Connect(late)

	got := receive(t, early)
	assert.Equal(t, models.EventMilestoneDeleted, got["type"])
	assert.Equal(t, "m1", got["id"])
	assertSilent(t, late)
}

func TestBroadcastSkipsClosedAndFullPeers(t *testing.T) {
	hub := NewHub(1, time.Second)
	defer hub.Close()

	closed := newFakeSink()
	cp := hub.Connect(closed)
	cp.Close()

	stalled := newFakeSink()
	stalled.block = make(chan struct{})
	hub.Connect(stalled)

	healthy := newFakeSink()
	hub.Connect(healthy)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast(models.NewEvent(models.EventTaskUpdated, "n", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a stalled peer")
	}
	close(stalled.block)

	first := receive(t, healthy)
	assert.Equal(t, models.EventTaskUpdated, first["type"])
}

func TestWriteFailureClosesPeer(t *testing.T) {
	hub := NewHub(4, time.Second)
	defer hub.Close()

	sink := newFakeSink()
	sink.fail = true
	p := hub.Connect(sink)

	hub.Broadcast(models.NewEvent(models.EventProjectCreated, "id", "p"))
	assert.Eventually(t, p.Closed, time.Second, 10*time.Millisecond)
	assert.True(t, sink.isClosed())
}

func TestNotifyTargetsIdentifiedUser(t *testing.T) {
	hub := NewHub(4, time.Second)
	defer hub.Close()

	alice := newFakeSink()
	pa := hub.Connect(alice)
	hub.Identify(pa, Identity{UserID: "u1", Name: "Alice"})

	bob := newFakeSink()
	pb := hub.Connect(bob)
	hub.Identify(pb, Identity{UserID: "u2"})

	hub.Notify("u1", models.NewEvent(models.EventReminderCreated, "reminder", "r"))

	assert.Equal(t, models.EventReminderCreated, receive(t, alice)["type"])
	assertSilent(t, bob)
}

func TestPinnedIdentityCannotBeReplaced(t *testing.T) {
	hub := NewHub(4, time.Second)
	defer hub.Close()

	p := hub.Connect(newFakeSink())
	p.identify(Identity{UserID: "u1", Name: "Alice"}, true)
	hub.Identify(p, Identity{UserID: "intruder", Name: "Al"})

	assert.Equal(t, Identity{UserID: "u1", Name: "Al"}, p.Identity())
}

func TestCloseDisconnectsPeers(t *testing.T) {
	hub := NewHub(4, time.Second)
	sink := newFakeSink()
	hub.Connect(sink)
	require.Equal(t, 1, hub.Count())

	hub.Close()
	assert.Zero(t, hub.Count())
	assert.True(t, sink.isClosed())

	late := newFakeSink()
	p := hub.Connect(late)
	assert.True(t, p.Closed())
}

func TestWebsocketHandler(t *testing.T) {
	hub := NewHub(8, time.Second)
	defer hub.Close()

	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(map[string]string{"type": "identify", "userId": "u9", "name": "Nina"}))

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	dec := json.NewDecoder(conn)
	var ack map[string]interface{}
	require.NoError(t, dec.Decode(&ack))
	assert.Equal(t, "identified", ack["type"])
	assert.Equal(t, "u9", ack["userId"])

	hub.Broadcast(models.NewEvent(models.EventMilestoneCreated, "milestone", map[string]string{"name": "M"}))
	var ev map[string]interface{}
	require.NoError(t, dec.Decode(&ev))
	assert.Equal(t, models.EventMilestoneCreated, ev["type"])
}

func TestWebsocketHandlerRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(NewHub(1, time.Second), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebsocketHandlerSkipsMalformedFrames(t *testing.T) {
	hub := NewHub(8, time.Second)
	defer hub.Close()

	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	for _, frame := range []string{`{"type":`, `{"type":"ping"}`, `{"type":5}`, `{"type":"ping"}`} {
		require.NoError(t, websocket.Message.Send(conn, frame))
	}

	for i := 0; i < 2; i++ {
		var reply map[string]interface{}
		require.NoError(t, websocket.JSON.Receive(conn, &reply))
		assert.Equal(t, "pong", reply["type"])
	}
}
