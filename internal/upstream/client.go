// ABOUTME: HTTP client for the Neurofluxion inference backend
// ABOUTME: Wraps chat, health, agent-status, model and upload endpoints

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// BackendError reports a non-success response from the inference backend.
// Transport failures are wrapped separately so callers can distinguish
// "backend said no" from "backend unreachable" when they care; both count
// as upstream failure for fallback purposes.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// ChatRequest is the payload for the backend chat endpoint.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id"`
	MessageType    string `json:"message_type"`
}

// ChatResponse is the backend's reply to a chat request.
type ChatResponse struct {
	Response       string         `json:"response"`
	AgentUsed      string         `json:"agent_used"`
	Metadata       map[string]any `json:"metadata"`
	ProcessingTime float64        `json:"processing_time"`
}

// AgentStatusEntry is one agent's status as reported by the backend.
type AgentStatusEntry struct {
	AgentName    string         `json:"agent_name"`
	Status       string         `json:"status"`
	LastActivity string         `json:"last_activity"`
	Metadata     map[string]any `json:"metadata"`
}

// Client talks to the inference backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a backend client for the given base URL. A nil httpClient
// falls back to http.DefaultClient; no request timeout is imposed here,
// that is the transport's concern.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "upstream"),
	}
}

// Chat sends a user message to the backend and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling backend chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readBackendError(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	c.logger.Debug("backend chat completed",
		"agent_used", chatResp.AgentUsed,
		"processing_time", chatResp.ProcessingTime)
	return &chatResp, nil
}

// Health fetches the backend health payload verbatim.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, "/api/health")
}

// AgentStatuses fetches the backend's view of agent health.
func (c *Client) AgentStatuses(ctx context.Context) ([]AgentStatusEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/agents/status", nil)
	if err != nil {
		return nil, fmt.Errorf("creating status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readBackendError(resp)
	}

	var statuses []AgentStatusEntry
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return statuses, nil
}

// UpdateAgentStatus forwards a status-update body to the backend unchanged.
func (c *Client) UpdateAgentStatus(ctx context.Context, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/agents/status", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating status update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend status update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readBackendError(resp)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding status update response: %w", err)
	}
	return result, nil
}

// Models lists the backend's available models.
func (c *Client) Models(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, "/api/models")
}

// Upload streams a file to the backend's multipart upload endpoint and
// returns its analysis payload.
func (c *Client) Upload(ctx context.Context, filename, contentType string, file io.Reader) (map[string]any, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)}
	if contentType != "" {
		header["Content-Type"] = []string{contentType}
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copying file into multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readBackendError(resp)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return result, nil
}

// getJSON performs a GET and decodes the response body into a generic map.
func (c *Client) getJSON(ctx context.Context, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readBackendError(resp)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response for %s: %w", path, err)
	}
	return result, nil
}

// readBackendError drains the response body into a BackendError.
// The body is capped so a misbehaving backend cannot balloon the error.
func readBackendError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &BackendError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
