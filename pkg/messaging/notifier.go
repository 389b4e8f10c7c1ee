package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is a text message addressed to a phone number.
type Message struct {
	To       string            `json:"to"`
	Body     string            `json:"body"`
	Template string            `json:"template,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPGateway posts messages to a generic SMS/WhatsApp gateway as JSON.
type HTTPGateway struct {
	url        string
	token      string
	sender     string
	httpClient *http.Client
}

// NewHTTPGateway builds a gateway client.
func NewHTTPGateway(url, token, sender string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		url:        strings.TrimRight(url, "/"),
		token:      token,
		sender:     sender,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gatewayPayload struct {
	From string `json:"from,omitempty"`
	Message
}

// Send delivers msg; any non-2xx response is an error.
func (g *HTTPGateway) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("send message: recipient required")
	}
	payload, err := json.Marshal(gatewayPayload{From: g.sender, Message: msg})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send message: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Noop drops every message. Used when messaging is disabled.
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }
