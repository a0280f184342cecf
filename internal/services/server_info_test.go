package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ws default port", "ws://chat.example.com", "http://chat.example.com:80/server-info"},
		{"wss default port", "wss://chat.example.com/socket", "https://chat.example.com:443/server-info"},
		{"explicit port", "ws://localhost:3000?username=alice", "http://localhost:3000/server-info"},
		{"secure explicit port", "wss://chat.example.com:8443", "https://chat.example.com:8443/server-info"},
		{"ipv6", "ws://[::1]:3000", "http://[::1]:3000/server-info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InfoURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInfoURL_Invalid(t *testing.T) {
	for _, in := range []string{"ftp://example.com", "ws://", "://bad"} {
		_, err := InfoURL(in)
		assert.Error(t, err, in)
	}
}

func TestServerInfoService_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/server-info" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"serverName":"Lobby","totalMaxConnections":50,"currentOnline":3}`))
	}))
	defer srv.Close()

	svc := NewServerInfoService(2 * time.Second)
	info, err := svc.Fetch(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?username=bob")
	require.NoError(t, err)
	assert.Equal(t, "Lobby", info.ServerName)
	assert.Equal(t, 50, info.TotalMaxConnections)
	assert.Equal(t, 3, info.CurrentOnline)
}

func TestServerInfoService_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewServerInfoService(2 * time.Second)
	_, err := svc.Fetch(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	assert.ErrorContains(t, err, "unexpected status")
}

func TestServerInfoService_FetchBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	svc := NewServerInfoService(2 * time.Second)
	_, err := svc.Fetch(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	assert.ErrorContains(t, err, "decode server info")
}
