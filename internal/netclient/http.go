package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hersh/gotris-engine/internal/protocol"
)

// API is a thin client for the session HTTP routes.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    http.DefaultClient,
	}
}

func (a *API) CreateSession(ctx context.Context) (protocol.CreateSessionResponse, error) {
	var out protocol.CreateSessionResponse
	err := a.do(ctx, http.MethodPost, "/sessions", nil, http.StatusCreated, &out)
	return out, err
}

func (a *API) Snapshot(ctx context.Context, id string) (protocol.SnapshotPayload, error) {
	var out protocol.SnapshotPayload
	err := a.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, http.StatusOK, &out)
	return out, err
}

func (a *API) Command(ctx context.Context, id, command string, value int) (protocol.SnapshotPayload, error) {
	var out protocol.SnapshotPayload
	body := protocol.CommandPayload{Command: command, Value: value}
	err := a.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/commands", body, http.StatusOK, &out)
	return out, err
}

func (a *API) Terminate(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// StreamURL returns the websocket URL for a session.
func (a *API) StreamURL(id string) (string, error) {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/sessions/" + url.PathEscape(id) + "/ws"
	return u.String(), nil
}

func (a *API) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e protocol.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
