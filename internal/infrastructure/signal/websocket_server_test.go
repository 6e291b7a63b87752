package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"streamwatch/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testToken = "s3cret"

type staticSnapshots struct {
	snap *domain.Snapshot
}

func (s staticSnapshots) Snapshot() *domain.Snapshot { return s.snap }

// fakeWatchlist mimics the watch-list service: a successful add emits a
// synthetic event on events.
type fakeWatchlist struct {
	mu     sync.Mutex
	err    error
	added  []string
	events chan<- domain.TransitionEvent
}

func (f *fakeWatchlist) List(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...), nil
}

func (f *fakeWatchlist) Add(_ context.Context, login string) (domain.TransitionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.TransitionEvent{}, f.err
	}
	f.added = append(f.added, login)
	event := domain.TransitionEvent{
		Kind:      domain.WentOffline,
		Status:    domain.LiveStatus{Login: login},
		Synthetic: true,
	}
	f.events <- event
	return event, nil
}

func (f *fakeWatchlist) Remove(context.Context, string) error { return nil }

type hubFixture struct {
	hub       *WebSocketServer
	server    *httptest.Server
	events    chan domain.TransitionEvent
	watchlist *fakeWatchlist
}

func testSnapshot() *domain.Snapshot {
	alice := domain.LiveStatus{Login: "alice", DisplayName: "Alice", Title: "live now", ViewerCount: 10}
	bob := domain.ProfileInfo{ID: "2", Login: "bob", DisplayName: "Bob"}
	return domain.NewSnapshot(
		[]string{"alice", "bob"},
		map[string]domain.LiveStatus{"alice": alice},
		map[string]domain.ProfileInfo{"bob": bob},
		time.Now(),
	)
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	events := make(chan domain.TransitionEvent, 16)
	watchlist := &fakeWatchlist{events: events}

	cfg := DefaultHubConfig()
	cfg.AccessToken = testToken
	hub := NewWebSocketServer(cfg, staticSnapshots{snap: testSnapshot()}, watchlist, nil, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx, events)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return &hubFixture{hub: hub, server: server, events: events, watchlist: watchlist}
}

func (f *hubFixture) url(query string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/" + query
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url("?token="+testToken), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	initial := readEnvelope(t, conn)
	require.Equal(t, TypeStreams, initial.Type)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func send(t *testing.T, conn *websocket.Conn, msgType MessageType, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(OutboundMessage{Type: msgType, Payload: payload}))
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.Error(t, err)
	assert.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected no message, got %v", err)
}

func TestHub_RejectsInvalidToken(t *testing.T) {
	f := newHubFixture(t)

	for name, query := range map[string]string{
		"wrong token":   "?token=nope",
		"missing token": "",
	} {
		t.Run(name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(f.url(query), nil)
			require.NoError(t, err)
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err = conn.ReadMessage()

			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
			assert.Equal(t, closeReasonInvalidToken, closeErr.Text)
			assert.Equal(t, 0, f.hub.ConnectedClients())
		})
	}
}

func TestHub_AcceptsBearerHeader(t *testing.T) {
	f := newHubFixture(t)

	// The scheme is matched the same way as on the HTTP API.
	for _, scheme := range []string{"Bearer", "bearer"} {
		t.Run(scheme, func(t *testing.T) {
			header := http.Header{}
			header.Set("Authorization", scheme+" "+testToken)
			conn, _, err := websocket.DefaultDialer.Dial(f.url(""), header)
			require.NoError(t, err)
			defer conn.Close()

			env := readEnvelope(t, conn)
			assert.Equal(t, TypeStreams, env.Type)
		})
	}
}

func TestHub_InitialSnapshot(t *testing.T) {
	f := newHubFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url("?token="+testToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	require.Equal(t, TypeStreams, env.Type)

	var payload StreamsPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Len(t, payload.Online, 1)
	assert.Equal(t, "alice", payload.Online[0].Login)
	require.Len(t, payload.Offline, 1)
	assert.Equal(t, "bob", payload.Offline[0].Login)

	assert.Equal(t, 1, f.hub.ConnectedClients())
}

func TestHub_AskStreamsRepliesToSenderOnly(t *testing.T) {
	f := newHubFixture(t)
	asker := f.dial(t)
	bystander := f.dial(t)

	send(t, asker, TypeAskStreams, nil)

	env := readEnvelope(t, asker)
	require.Equal(t, TypeStreams, env.Type)
	var payload OnlinePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Len(t, payload.Online, 1)
	assert.Equal(t, "alice", payload.Online[0].Login)

	assertSilent(t, bystander)
}

func TestHub_AskStream(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)

	send(t, conn, TypeAskStream, "ALICE")
	env := readEnvelope(t, conn)
	require.Equal(t, TypeStreams, env.Type)
	var payload OnlinePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Len(t, payload.Online, 1)
	assert.Equal(t, "live now", payload.Online[0].Title)

	send(t, conn, TypeAskStream, "bob")
	env = readEnvelope(t, conn)
	require.Equal(t, TypeMessage, env.Type)
	var text string
	require.NoError(t, json.Unmarshal(env.Payload, &text))
	assert.Contains(t, text, "bob")
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	f := newHubFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	profile := &domain.ProfileInfo{ID: "2", Login: "bob"}
	f.events <- domain.TransitionEvent{
		Kind:    domain.WentOnline,
		Status:  domain.LiveStatus{Login: "bob", Title: "back"},
		Profile: profile,
	}

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		require.Equal(t, TypeNewStreamOnline, env.Type)

		var payload TransitionPayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "bob", payload.Stream.Login)
		require.NotNil(t, payload.Profile)
		assert.Equal(t, "2", payload.Profile.ID)
	}

	f.events <- domain.TransitionEvent{Kind: domain.WentOffline, Status: domain.LiveStatus{Login: "alice"}}
	assert.Equal(t, TypeStreamOffline, readEnvelope(t, a).Type)
	assert.Equal(t, TypeStreamOffline, readEnvelope(t, b).Type)
}

func TestHub_MalformedAndUnknownMessagesKeepConnection(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":"no type"}`)))
	send(t, conn, "SOMETHING_ELSE", map[string]int{"x": 1})
	send(t, conn, TypeMessage, "hello there")
	send(t, conn, TypeAddStream, 42)

	send(t, conn, TypeAskStreams, nil)
	env := readEnvelope(t, conn)
	assert.Equal(t, TypeStreams, env.Type)
	assert.Equal(t, 1, f.hub.ConnectedClients())
}

func TestHub_AddStreamRejected(t *testing.T) {
	f := newHubFixture(t)
	f.watchlist.err = domain.ErrWatchlistFull
	sender := f.dial(t)
	other := f.dial(t)

	send(t, sender, TypeAddStream, "newchan")

	env := readEnvelope(t, sender)
	require.Equal(t, TypeMessage, env.Type)
	var text string
	require.NoError(t, json.Unmarshal(env.Payload, &text))
	assert.Equal(t, domain.ErrWatchlistFull.Error(), text)

	assertSilent(t, other)
	assert.Empty(t, f.events)
}

func TestHub_AddStreamBroadcastsSyntheticEvent(t *testing.T) {
	f := newHubFixture(t)
	sender := f.dial(t)
	other := f.dial(t)

	send(t, sender, TypeAddStream, map[string]string{"login": "newchan"})

	for _, conn := range []*websocket.Conn{sender, other} {
		env := readEnvelope(t, conn)
		require.Equal(t, TypeStreamOffline, env.Type)
		var payload TransitionPayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "newchan", payload.Stream.Login)
		assert.True(t, payload.Synthetic)
	}
}

func TestHub_ClosedClientDoesNotAffectOthers(t *testing.T) {
	f := newHubFixture(t)
	gone := f.dial(t)
	stay := f.dial(t)
	require.Equal(t, 2, f.hub.ConnectedClients())

	require.NoError(t, gone.Close())
	require.Eventually(t, func() bool { return f.hub.ConnectedClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.events <- domain.TransitionEvent{Kind: domain.WentOnline, Status: domain.LiveStatus{Login: "carol"}}
	assert.Equal(t, TypeNewStreamOnline, readEnvelope(t, stay).Type)
}

func TestHub_InboundRateLimit(t *testing.T) {
	events := make(chan domain.TransitionEvent, 1)
	cfg := DefaultHubConfig()
	cfg.AccessToken = testToken
	cfg.MessagesPerSecond = 0.001
	cfg.Burst = 1
	hub := NewWebSocketServer(cfg, staticSnapshots{snap: testSnapshot()}, &fakeWatchlist{events: events}, nil, zaptest.NewLogger(t).Sugar())
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/?token="+testToken, nil)
	require.NoError(t, err)
	defer conn.Close()
	readEnvelope(t, conn)

	send(t, conn, TypeAskStreams, nil)
	send(t, conn, TypeAskStreams, nil)

	assert.Equal(t, TypeStreams, readEnvelope(t, conn).Type)
	assertSilent(t, conn)
}

func TestHub_MaxConnections(t *testing.T) {
	events := make(chan domain.TransitionEvent, 1)
	cfg := DefaultHubConfig()
	cfg.AccessToken = testToken
	cfg.MaxConnections = 1
	hub := NewWebSocketServer(cfg, staticSnapshots{snap: testSnapshot()}, &fakeWatchlist{events: events}, nil, zaptest.NewLogger(t).Sugar())
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=" + testToken

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	readEnvelope(t, first)

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = second.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
}

func TestHub_HealthCheck(t *testing.T) {
	f := newHubFixture(t)
	f.dial(t)

	rec := httptest.NewRecorder()
	f.hub.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}
