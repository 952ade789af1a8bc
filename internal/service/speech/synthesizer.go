package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StreamElements 公共语音合成接口的默认参数。
const (
	DefaultTTSBaseURL = "https://api.streamelements.com"
	DefaultVoice      = "Brian"
)

// ErrEmptySynthesisInput is returned when the text to speak is blank; the
// upstream API answers such requests with silence-length garbage, so the
// client fails closed instead.
var ErrEmptySynthesisInput = errors.New("empty synthesis input")

// StreamElementsClient fetches MP3 speech clips from the StreamElements TTS
// endpoint.
type StreamElementsClient struct {
	baseURL string
	voice   string
	client  *http.Client
}

// NewStreamElementsClient creates a synthesis client. Empty baseURL or voice
// fall back to the public endpoint defaults.
func NewStreamElementsClient(baseURL, voice string, timeout time.Duration) *StreamElementsClient {
	if baseURL == "" {
		baseURL = DefaultTTSBaseURL
	}
	if voice == "" {
		voice = DefaultVoice
	}
	return &StreamElementsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		voice:   voice,
		client:  &http.Client{Timeout: timeout},
	}
}

// Synthesize returns one MP3 clip speaking the given text.
func (c *StreamElementsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySynthesisInput
	}

	endpoint := fmt.Sprintf("%s/kappa/v2/speech?voice=%s&text=%s",
		c.baseURL, url.QueryEscape(c.voice), url.QueryEscape(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis server returned %d", resp.StatusCode)
	}
	clip, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	if len(clip) == 0 {
		return nil, errors.New("synthesis server returned an empty clip")
	}
	return clip, nil
}
