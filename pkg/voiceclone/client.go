package voiceclone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Sample is one voice recording uploaded for cloning.
type Sample struct {
	Filename string
	Data     []byte
}

// CreateVoiceRequest describes a new cloned voice.
type CreateVoiceRequest struct {
	Name                  string
	Description           string
	Labels                map[string]string
	Samples               []Sample
	RemoveBackgroundNoise bool
}

// Voice is the provider's answer to a clone request.
type Voice struct {
	VoiceID              string `json:"voice_id"`
	RequiresVerification bool   `json:"requires_verification"`
}

// APIError carries the provider's status and response body.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to an ElevenLabs compatible voice API.
type Client struct {
	baseURL    string
	apiKey     string
	modelID    string
	httpClient *http.Client
}

// NewClient builds a client. A zero timeout defaults to two minutes since
// speech conversion is slow.
func NewClient(baseURL, apiKey, modelID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateVoice uploads samples and returns the provider voice id.
func (c *Client) CreateVoice(ctx context.Context, in CreateVoiceRequest) (*Voice, error) {
	if len(in.Samples) == 0 {
		return nil, fmt.Errorf("create voice: at least one sample is required")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("name", in.Name)
	if in.Description != "" {
		_ = writer.WriteField("description", in.Description)
	}
	if len(in.Labels) > 0 {
		labels, err := json.Marshal(in.Labels)
		if err != nil {
			return nil, fmt.Errorf("encode labels: %w", err)
		}
		_ = writer.WriteField("labels", string(labels))
	}
	if in.RemoveBackgroundNoise {
		_ = writer.WriteField("remove_background_noise", "true")
	}
	for _, sample := range in.Samples {
		part, err := writer.CreateFormFile("files", sample.Filename)
		if err != nil {
			return nil, fmt.Errorf("create sample part: %w", err)
		}
		if _, err := part.Write(sample.Data); err != nil {
			return nil, fmt.Errorf("write sample part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/voices/add", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req, "create voice", http.StatusOK)
	if err != nil {
		return nil, err
	}
	var voice Voice
	if err := json.Unmarshal(respBody, &voice); err != nil {
		return nil, fmt.Errorf("decode voice: %w", err)
	}
	if voice.VoiceID == "" {
		return nil, fmt.Errorf("create voice: provider returned no voice_id")
	}
	return &voice, nil
}

// SpeechToSpeech re-voices source audio with the cloned voice and returns the
// generated mp3 bytes.
func (c *Client) SpeechToSpeech(ctx context.Context, voiceID string, source io.Reader, filename string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if c.modelID != "" {
		_ = writer.WriteField("model_id", c.modelID)
	}
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("create audio part: %w", err)
	}
	if _, err := io.Copy(part, source); err != nil {
		return nil, fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/speech-to-speech/"+voiceID, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "audio/mpeg")

	return c.do(req, "speech to speech", http.StatusOK)
}

// DeleteVoice removes a cloned voice. A 404 is treated as already deleted.
func (c *Client) DeleteVoice(ctx context.Context, voiceID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/voices/"+voiceID, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "delete voice", http.StatusOK, http.StatusNoContent, http.StatusNotFound)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	return req, nil
}

func (c *Client) do(req *http.Request, op string, accepted ...int) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			return body, nil
		}
	}
	return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(body)}
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
