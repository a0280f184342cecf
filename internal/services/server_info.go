package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"chat-client/internal/models"
)

const serverInfoPath = "/server-info"

// InfoURL derives the companion metadata endpoint from a websocket URL.
// The scheme maps ws to http and wss to https; a missing port becomes the
// scheme default. Path and query of the websocket URL are dropped.
func InfoURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	var scheme, defaultPort string
	switch u.Scheme {
	case "ws", "http":
		scheme, defaultPort = "http", "80"
	case "wss", "https":
		scheme, defaultPort = "https", "443"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("server url %q has no host", wsURL)
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	info := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   serverInfoPath,
	}
	return info.String(), nil
}

// ServerInfoService fetches server metadata over plain HTTP.
type ServerInfoService struct {
	client *http.Client
}

func NewServerInfoService(timeout time.Duration) *ServerInfoService {
	return &ServerInfoService{client: &http.Client{Timeout: timeout}}
}

func (s *ServerInfoService) Fetch(ctx context.Context, wsURL string) (*models.ServerInfo, error) {
	endpoint, err := InfoURL(wsURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch server info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch server info: unexpected status %s", resp.Status)
	}

	var info models.ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode server info: %w", err)
	}
	return &info, nil
}
