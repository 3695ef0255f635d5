package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

var errSessionNotFound = errors.New("session not found")

// statusError is a non-200 reply from the relay.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relay error [%d]: %s", e.Code, e.Message)
}

// relayClient talks to the relay's HTTP endpoints.
type relayClient struct {
	baseURL    string
	httpClient *http.Client
}

func newRelayClient(server string) *relayClient {
	return &relayClient{
		baseURL:    strings.TrimSuffix(server, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Ask sends one turn to POST /chat and waits for the aggregated reply.
func (c *relayClient) Ask(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return chat.ChatResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return chat.ChatResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var reply chat.ChatResponse
	if err := c.do(httpReq, &reply); err != nil {
		return chat.ChatResponse{}, err
	}
	return reply, nil
}

// Sessions fetches every transcript keyed by session id.
func (c *relayClient) Sessions(ctx context.Context) (map[string][]chat.ChatMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var sessions map[string][]chat.ChatMessage
	if err := c.do(httpReq, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Session fetches one transcript.
func (c *relayClient) Session(ctx context.Context, sessionID string) ([]chat.ChatMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var payload struct {
		SessionID string             `json:"session_id"`
		Messages  []chat.ChatMessage `json:"messages"`
	}
	if err := c.do(httpReq, &payload); err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, errSessionNotFound
		}
		return nil, err
	}
	return payload.Messages, nil
}

// WebSocketURL maps the server address onto the streaming endpoint.
func (c *relayClient) WebSocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat"
	return u.String(), nil
}

func (c *relayClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			return &statusError{Code: resp.StatusCode, Message: apiErr.Error}
		}
		return &statusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
