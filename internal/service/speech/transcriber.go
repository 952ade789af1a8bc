package speech

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

	"github.com/mkarlsen/voiceloop/internal/audio"
)

// whisper.cpp 服务端推理接口的客户端实现。
// WhisperClient posts one WAV-encoded utterance per request and reads back the
// recognized text. The server owns the model; this client only shapes audio
// into the format it expects.
type WhisperClient struct {
	baseURL string
	client  *http.Client
}

// NewWhisperClient creates a client for a whisper.cpp server at baseURL.
func NewWhisperClient(baseURL string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe sends mono PCM samples for recognition. Empty input returns an
// empty transcript without touching the network.
func (c *WhisperClient) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(samples, sampleRate)); err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	if err := form.WriteField("temperature", "0.0"); err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
