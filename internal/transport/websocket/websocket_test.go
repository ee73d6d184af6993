package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/internal/service/match"
	"github.com/rohitdahale/codebattle-backend/pkg/auth"
)

const testSecret = "test-secret"

// recv pops one buffered frame from a client that has no write pump.
func recv(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case data := <-c.send:
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	default:
		t.Fatalf("no frame queued for %s", c.Player)
		return Frame{}
	}
}

func TestConnectionManagerTopics(t *testing.T) {
	cm := NewConnectionManager(zap.NewNop())
	a := NewClient(nil, "a", "Ada", "ref-a")
	b := NewClient(nil, "b", "Bob", "ref-b")
	cm.Add(a)
	cm.Add(b)
	assert.Equal(t, 2, cm.Count())

	cm.Join("AB12CD", "a")
	cm.Emit("AB12CD", "room_updated", map[string]any{"roomCode": "AB12CD"})
	assert.Equal(t, "room_updated", recv(t, a).Type)
	assert.Empty(t, b.send)

	cm.Emit(domain.PlayerTopic("b"), "queue_joined", nil)
	assert.Equal(t, "queue_joined", recv(t, b).Type)
	assert.Empty(t, a.send)

	cm.Emit(domain.TopicGlobal, "room_deleted", nil)
	assert.Equal(t, "room_deleted", recv(t, a).Type)
	assert.Equal(t, "room_deleted", recv(t, b).Type)

	cm.Leave("AB12CD", "a")
	cm.Emit("AB12CD", "room_updated", nil)
	assert.Empty(t, a.send)
}

func TestConnectionManagerReplacesConnection(t *testing.T) {
	cm := NewConnectionManager(zap.NewNop())
	old := NewClient(nil, "a", "Ada", "ref-1")
	cm.Add(old)

	fresh := NewClient(nil, "a", "Ada", "ref-2")
	cm.Add(fresh)

	assert.False(t, old.enqueue([]byte("{}")), "replaced client is closed")
	assert.False(t, cm.isCurrent(old))
	assert.False(t, cm.RemoveIfMatching(old))
	assert.True(t, cm.isCurrent(fresh))
	assert.Equal(t, 1, cm.Count())

	assert.True(t, cm.RemoveIfMatching(fresh))
	assert.Equal(t, 0, cm.Count())
}

func TestConnectionManagerDropsSlowClient(t *testing.T) {
	cm := NewConnectionManager(zap.NewNop())
	c := NewClient(nil, "a", "Ada", "ref-a")
	cm.Add(c)

	for i := 0; i < sendBuffer; i++ {
		cm.SendTo("a", Frame{Type: "pong"})
	}
	cm.SendTo("a", Frame{Type: "pong"})

	select {
	case <-c.done:
	default:
		t.Fatal("slow client should be closed")
	}
}

type call struct {
	name   string
	player domain.PlayerID
	arg    string
}

type fakeEngine struct {
	mu       sync.Mutex
	calls    []call
	restored bool
	errs     map[string]error
	gone     chan domain.ConnRef
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{errs: map[string]error{}, gone: make(chan domain.ConnRef, 4)}
}

func (f *fakeEngine) record(name string, player domain.PlayerID, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, player, arg})
	return f.errs[name]
}

func (f *fakeEngine) called(name string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) Enqueue(p match.Player) error { return f.record("Enqueue", p.ID, p.Name) }
func (f *fakeEngine) Dequeue(player domain.PlayerID) { f.record("Dequeue", player, "") }
func (f *fakeEngine) CreateRoom(p match.Player, s domain.RoomSettings) (string, error) {
	return "AB12CD", f.record("CreateRoom", p.ID, s.Difficulty)
}
func (f *fakeEngine) JoinRoom(code string, p match.Player) error {
	return f.record("JoinRoom", p.ID, code)
}
func (f *fakeEngine) LeaveRoom(player domain.PlayerID) error {
	return f.record("LeaveRoom", player, "")
}
func (f *fakeEngine) SetReady(player domain.PlayerID, ready bool) error {
	if ready {
		return f.record("SetReady", player, "true")
	}
	return f.record("SetReady", player, "false")
}
func (f *fakeEngine) StartMatch(host domain.PlayerID) error {
	return f.record("StartMatch", host, "")
}
func (f *fakeEngine) ChangeProblem(host domain.PlayerID, id string) error {
	return f.record("ChangeProblem", host, id)
}
func (f *fakeEngine) SubmitCode(player domain.PlayerID, code string) error {
	return f.record("SubmitCode", player, code)
}
func (f *fakeEngine) Disconnect(player domain.PlayerID, conn domain.ConnRef) {
	f.record("Disconnect", player, string(conn))
	f.gone <- conn
}
func (f *fakeEngine) Reconnect(player domain.PlayerID, conn domain.ConnRef) bool {
	f.record("Reconnect", player, string(conn))
	return f.restored
}
func (f *fakeEngine) Snapshot(player domain.PlayerID) (domain.SessionView, error) {
	if err := f.record("Snapshot", player, ""); err != nil {
		return domain.SessionView{}, err
	}
	return domain.SessionView{SessionID: "s1", Status: domain.StatusActive}, nil
}

func startServer(t *testing.T, engine Engine) (*ConnectionManager, string) {
	t.Helper()
	cm := NewConnectionManager(zap.NewNop())
	h := NewHandler(cm, engine, testSecret, func(*http.Request) bool { return true }, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	return cm, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func login(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	token, err := auth.GenerateAccessToken(testSecret, userID, "Ada", "", time.Minute)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "init", JWT: token}))
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out map[string]any
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestHandlerRejectsBadInit(t *testing.T) {
	engine := newFakeEngine()
	_, url := startServer(t, engine)

	conn := dial(t, url)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "init", JWT: "garbage"}))
	msg := read(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Unauthorized", msg["code"])

	conn2 := dial(t, url)
	require.NoError(t, conn2.WriteJSON(ClientMessage{Type: "join_queue"}))
	assert.Equal(t, "Unauthorized", read(t, conn2)["code"])

	assert.Empty(t, engine.called("Reconnect"))
}

func TestHandlerRoutesMessages(t *testing.T) {
	engine := newFakeEngine()
	engine.errs["JoinRoom"] = domain.ErrRoomFull
	_, url := startServer(t, engine)

	conn := dial(t, url)
	login(t, conn, "u1")
	connected := read(t, conn)
	assert.Equal(t, "connected", connected["type"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "join_queue"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "join_room", RoomCode: "ZZ99ZZ"}))
	failed := read(t, conn)
	assert.Equal(t, "error", failed["type"])
	assert.Equal(t, "RoomFull", failed["code"])
	assert.Equal(t, "join_room", failed["request"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "get_state"}))
	state := read(t, conn)
	assert.Equal(t, "session_state", state["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "set_ready"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "submit_code", Code: "return 1"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "dance"}))
	unknown := read(t, conn)
	assert.Equal(t, "BadRequest", unknown["code"])

	enq := engine.called("Enqueue")
	require.Len(t, enq, 1)
	assert.Equal(t, domain.PlayerID("u1"), enq[0].player)
	assert.Equal(t, "Ada", enq[0].arg)
	assert.Equal(t, "ZZ99ZZ", engine.called("JoinRoom")[0].arg)
	assert.Equal(t, "true", engine.called("SetReady")[0].arg)
	assert.Equal(t, "return 1", engine.called("SubmitCode")[0].arg)
}

func TestHandlerRestoresSessionAndReportsDisconnect(t *testing.T) {
	engine := newFakeEngine()
	engine.restored = true
	cm, url := startServer(t, engine)

	conn := dial(t, url)
	login(t, conn, "u1")
	assert.Equal(t, "connected", read(t, conn)["type"])
	restored := read(t, conn)
	assert.Equal(t, "session_restored", restored["type"])
	data := restored["data"].(map[string]any)
	assert.Equal(t, "s1", data["sessionId"])

	ref := engine.called("Reconnect")[0].arg
	conn.Close()

	select {
	case gone := <-engine.gone:
		assert.Equal(t, domain.ConnRef(ref), gone)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
	assert.Eventually(t, func() bool { return cm.Count() == 0 }, time.Second, 10*time.Millisecond)
}
