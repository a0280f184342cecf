package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/client"
	"chat-client/internal/config"
	"chat-client/internal/models"
	"chat-client/internal/session"
	"chat-client/internal/testutils"
)

const waitTimeout = 2 * time.Second

func testConfig() *config.Config {
	return &config.Config{
		Client: config.ClientConfig{ServerURL: "ws://chat.example:3000", Username: "alice"},
		Transport: config.TransportConfig{
			Driver:           "gorilla",
			HandshakeTimeout: time.Second,
			WriteTimeout:     time.Second,
		},
		Info: config.InfoConfig{Timeout: time.Second},
		Log:  config.LogConfig{Format: "text", Level: "info"},
	}
}

type fixture struct {
	transport *testutils.FakeTransport
	tickers   *testutils.FakeTickers
	sink      *testutils.RecordingSink
	client    *client.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSink(t, func(rec *testutils.RecordingSink) models.Sink { return rec })
}

// newFixtureWithSink lets a test put its own sink in front of the recorder.
func newFixtureWithSink(t *testing.T, wrap func(*testutils.RecordingSink) models.Sink) *fixture {
	t.Helper()

	f := &fixture{
		transport: testutils.NewFakeTransport(),
		tickers:   testutils.NewFakeTickers(),
		sink:      &testutils.RecordingSink{},
	}
	f.client = client.New(testConfig(), f.transport, wrap(f.sink), session.WithTicker(f.tickers.New))
	t.Cleanup(f.client.Disconnect)
	return f
}

func (f *fixture) connect(t *testing.T) *testutils.FakeConn {
	t.Helper()
	require.NoError(t, f.client.Connect(context.Background()))
	return f.transport.Last()
}

// establish connects and completes the token handshake, waiting for the
// queued roster probe to go out.
func (f *fixture) establish(t *testing.T) *testutils.FakeConn {
	t.Helper()
	conn := f.connect(t)
	conn.Push(`{"type":"session-token","token":"abc"}`)
	sent := conn.WaitSent(1, waitTimeout)
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"type":"chat","content":"/list","token":"abc"}`, sent[0])
	return conn
}

func TestClient_ConnectUsesHandshakeURL(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	assert.Equal(t, []string{"ws://chat.example:3000?username=alice"}, f.transport.URLs())
	assert.Equal(t, session.StateAwaitingToken, f.client.State())
	assert.Equal(t, "alice", f.client.DisplayName())
}

func TestClient_ChatCarriesToken(t *testing.T) {
	f := newFixture(t)
	conn := f.establish(t)
	assert.Equal(t, session.StateActive, f.client.State())

	require.NoError(t, f.client.Submit(context.Background(), "hi"))

	sent := conn.Sent()
	require.Len(t, sent, 2)
	assert.JSONEq(t, `{"type":"chat","content":"hi","token":"abc"}`, sent[1])
}

func TestClient_NoTokenNoSend(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	err := f.client.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Empty(t, conn.Sent())

	notices := f.sink.OfKind(models.EventNotice)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Text, "No session yet")
}

func TestClient_RosterSnapshot(t *testing.T) {
	f := newFixture(t)
	conn := f.establish(t)

	conn.Push(`{"type":"system","text":"Online users: alice, bob"}`)
	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return len(f.client.Members()) == 2
	}))
	assert.Equal(t, []string{"alice", "bob"}, f.client.Members())

	conn.Push(`{"type":"system","text":"carol has joined."}`)
	conn.Push(`{"type":"system","text":"bob has left."}`)
	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		m := f.client.Members()
		return len(m) == 2 && m[1] == "carol"
	}))
	assert.Equal(t, []string{"alice", "carol"}, f.client.Members())
}

func TestClient_MalformedFrameKeepsConnection(t *testing.T) {
	f := newFixture(t)
	conn := f.establish(t)

	conn.Push("not json")
	conn.Push(`{"type":"chat","username":"bob","text":"still here"}`)

	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return len(f.sink.OfKind(models.EventChat)) == 1
	}))
	assert.Len(t, f.sink.OfKind(models.EventDiagnostic), 1)
	assert.Equal(t, session.StateActive, f.client.State())
	assert.False(t, conn.Closed())
}

func TestClient_HeartbeatPings(t *testing.T) {
	f := newFixture(t)
	conn := f.establish(t)

	conn.Push(`{"type":"heartbeat-config","interval":5000}`)
	ticker := f.tickers.Next(waitTimeout)
	require.NotNil(t, ticker)
	assert.Equal(t, 5*time.Second, ticker.Interval)

	ticker.Tick()
	sent := conn.WaitSent(2, waitTimeout)
	require.Len(t, sent, 2)
	assert.JSONEq(t, `{"type":"ping","token":"abc"}`, sent[1])
}

func TestClient_MentionAndDoNotDisturb(t *testing.T) {
	f := newFixture(t)
	conn := f.establish(t)

	conn.Push(`{"type":"chat","username":"bob","text":"Alice, you there?"}`)
	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return len(f.sink.OfKind(models.EventMention)) == 1
	}))

	f.client.SetDoNotDisturb(true)
	assert.True(t, f.client.DoNotDisturb())
	conn.Push(`{"type":"chat","username":"bob","text":"alice?"}`)
	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return len(f.sink.OfKind(models.EventChat)) == 2
	}))
	assert.Len(t, f.sink.OfKind(models.EventMention), 1)
}

func TestClient_NickRename(t *testing.T) {
	f := newFixture(t)
	conn := f.establish(t)

	require.NoError(t, f.client.Submit(context.Background(), "/nick alicia"))
	conn.Push(`{"type":"system","text":"Online users: alice, bob"}`)
	conn.Push(`{"type":"system","text":"alice is now alicia"}`)

	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return f.client.DisplayName() == "alicia"
	}))

	sent := conn.WaitSent(3, waitTimeout)
	require.Len(t, sent, 3)
	assert.JSONEq(t, `{"type":"chat","content":"/nick alicia","token":"abc"}`, sent[1])
	assert.JSONEq(t, `{"type":"chat","content":"/list","token":"abc"}`, sent[2])
	assert.Equal(t, []string{"alicia", "bob"}, f.client.Members())
}

func TestClient_ReconnectResetsRoster(t *testing.T) {
	f := newFixture(t)
	first := f.establish(t)

	first.Push(`{"type":"system","text":"Online users: alice, bob"}`)
	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return len(f.client.Members()) == 2
	}))

	second := f.connect(t)
	assert.True(t, first.Closed())
	assert.NotSame(t, first, second)
	assert.Empty(t, f.client.Members())
	assert.Equal(t, session.StateAwaitingToken, f.client.State())
}

func TestClient_DialFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.DialErr = assert.AnError

	err := f.client.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.StateDisconnected, f.client.State())
}

func TestNewFromConfig_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Transport.Driver = "smoke-signals"

	_, err := client.NewFromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestClient_EmptyTokenKeepsSessionGated(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t)

	conn.Push(`{"type":"session-token"}`)
	conn.Push(`{"type":"session-token","token":""}`)
	conn.Push(`{"type":"chat","username":"bob","text":"after"}`)

	require.True(t, testutils.WaitFor(waitTimeout, func() bool {
		return len(f.sink.OfKind(models.EventChat)) == 1
	}))
	assert.Len(t, f.sink.OfKind(models.EventDiagnostic), 2)
	assert.Equal(t, session.StateAwaitingToken, f.client.State())
	assert.Empty(t, conn.Sent(), "no chat may leave without a token")

	assert.ErrorIs(t, f.client.Submit(context.Background(), "hi"), session.ErrNoSession)
	assert.Empty(t, conn.Sent())
}

// gateSink parks the first chat event whose text is "gate".
type gateSink struct {
	next    models.Sink
	entered chan struct{}
	release chan struct{}
}

func (s *gateSink) Emit(e models.Event) {
	if e.Kind == models.EventChat && e.Text == "gate" {
		close(s.entered)
		<-s.release
	}
	s.next.Emit(e)
}

func TestClient_ReconnectDropsFramesOfRetiredConnection(t *testing.T) {
	gate := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWithSink(t, func(rec *testutils.RecordingSink) models.Sink {
		gate.next = rec
		return gate
	})
	first := f.establish(t)

	first.Push(`{"type":"history","messages":[
		{"type":"chat","username":"bob","text":"gate"},
		{"type":"system","text":"Online users: ghost1, ghost2"}
	]}`)
	select {
	case <-gate.entered:
	case <-time.After(waitTimeout):
		t.Fatal("history was never replayed")
	}

	done := make(chan error, 1)
	go func() {
		done <- f.client.ConnectTo(context.Background(), "ws://other.example:3000", "alice")
	}()
	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("reconnect hung")
	}

	assert.True(t, first.Closed())
	assert.Empty(t, f.client.Members(), "members of the old server must not leak into the new connection")
	assert.Equal(t, session.StateAwaitingToken, f.client.State())
	assert.Equal(t, "ws://other.example:3000?username=alice", f.transport.URLs()[1])
}
