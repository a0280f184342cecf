package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
	"chat-client/internal/session"
	"chat-client/internal/testutils"
)

type fakeSession struct {
	mu      sync.Mutex
	sent    []string
	nicks   []string
	sendErr error
	url     string
}

func (s *fakeSession) SendChat(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, content)
	return nil
}

func (s *fakeSession) SetPendingNick(ctx context.Context, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nicks = append(s.nicks, nick)
}

func (s *fakeSession) ServerURL() string { return s.url }

type fakeFetcher struct {
	urls []string
	info *models.ServerInfo
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, wsURL string) (*models.ServerInfo, error) {
	f.urls = append(f.urls, wsURL)
	return f.info, f.err
}

func newTestService() (*CommandService, *fakeSession, *fakeFetcher, *testutils.RecordingSink) {
	sess := &fakeSession{url: "ws://localhost:3000?username=alice"}
	fetcher := &fakeFetcher{info: &models.ServerInfo{ServerName: "Lobby", TotalMaxConnections: 10, CurrentOnline: 2}}
	sink := &testutils.RecordingSink{}
	return NewCommandService(sess, fetcher, sink), sess, fetcher, sink
}

func TestSubmit_PlainText(t *testing.T) {
	svc, sess, _, sink := newTestService()

	require.NoError(t, svc.Submit(context.Background(), "hello world"))
	assert.Equal(t, []string{"hello world"}, sess.sent)
	assert.Empty(t, sink.Events())
}

func TestSubmit_BlankLineIgnored(t *testing.T) {
	svc, sess, _, sink := newTestService()

	require.NoError(t, svc.Submit(context.Background(), "   "))
	assert.Empty(t, sess.sent)
	assert.Empty(t, sink.Events())
}

func TestSubmit_Nick(t *testing.T) {
	svc, sess, _, _ := newTestService()

	require.NoError(t, svc.Submit(context.Background(), "/NICK  bobby "))
	assert.Equal(t, []string{"bobby"}, sess.nicks)
	assert.Equal(t, []string{"/NICK  bobby "}, sess.sent, "the rename request still goes out as chat")

	require.NoError(t, svc.Submit(context.Background(), "/nickname"))
	assert.Len(t, sess.nicks, 1)
}

func TestSubmit_Info(t *testing.T) {
	svc, sess, fetcher, sink := newTestService()

	require.NoError(t, svc.Submit(context.Background(), "/Info"))
	assert.Empty(t, sess.sent, "/info is never sent on the wire")
	assert.Equal(t, []string{"ws://localhost:3000?username=alice"}, fetcher.urls)

	events := sink.OfKind(models.EventServerInfo)
	require.Len(t, events, 1)
	assert.Equal(t, "Lobby", events[0].Info.ServerName)
	assert.Equal(t, "Lobby: 2/10 online", events[0].Text)
}

func TestSubmit_InfoFailure(t *testing.T) {
	svc, _, fetcher, sink := newTestService()
	fetcher.err = errors.New("connection refused")

	err := svc.Submit(context.Background(), "/info")
	assert.Error(t, err)
	require.Len(t, sink.OfKind(models.EventDiagnostic), 1)
}

func TestSubmit_InfoWithoutConnection(t *testing.T) {
	svc, sess, fetcher, sink := newTestService()
	sess.url = ""

	err := svc.Submit(context.Background(), "/info")
	assert.ErrorIs(t, err, session.ErrNotConnected)
	assert.Empty(t, fetcher.urls)
	assert.Len(t, sink.OfKind(models.EventNotice), 1)
}

func TestSubmit_RejectedWithoutToken(t *testing.T) {
	svc, sess, _, sink := newTestService()
	sess.sendErr = session.ErrNoSession

	err := svc.Submit(context.Background(), "anyone here?")
	assert.ErrorIs(t, err, session.ErrNoSession)

	notices := sink.OfKind(models.EventNotice)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Text, "No session yet")
}

func TestSubmit_NotConnected(t *testing.T) {
	svc, sess, _, sink := newTestService()
	sess.sendErr = session.ErrNotConnected

	assert.ErrorIs(t, svc.Submit(context.Background(), "hi"), session.ErrNotConnected)
	require.Len(t, sink.OfKind(models.EventNotice), 1)
}
