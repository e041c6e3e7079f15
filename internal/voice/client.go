package voice

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
	"unicode/utf8"

	"narrate-backend/internal/shared/metrics"
	"narrate-backend/internal/shared/telemetry"
)

const (
	DefaultBaseURL = "https://elevenlabs-mcp.p.rapidapi.com"

	audioMPEG      = "audio/mpeg"
	readChunkSize  = 32 * 1024
	maxErrorBody   = 4 * 1024
	maxPrealloc    = 16 << 20
	defaultTimeout = 5 * time.Minute
)

// chunkSchedule is sent with every request so the provider streams early.
var chunkSchedule = []int{120, 160, 250, 290}

// Config configures a Client. Both keys are required.
type Config struct {
	BaseURL string
	// Host is sent as X-Rapidapi-Host; defaults to the BaseURL host.
	Host string
	// TransportKey authenticates with the API gateway (X-Rapidapi-Key).
	TransportKey string
	// ProviderKey authenticates with the synthesis provider (X-Elevenlabs-Api-Key).
	ProviderKey string
	HTTPClient  *http.Client
}

// Client calls the voice synthesis proxy.
type Client struct {
	baseURL      string
	host         string
	transportKey string
	providerKey  string
	httpClient   *http.Client
}

// Audio is a finished synthesis result.
type Audio struct {
	Data        []byte
	ContentType string
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.TransportKey) == "" || strings.TrimSpace(cfg.ProviderKey) == "" {
		return nil, ErrMissingCredentials
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid voice base url %q", cfg.BaseURL)
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = parsed.Host
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:      base,
		host:         host,
		transportKey: cfg.TransportKey,
		providerKey:  cfg.ProviderKey,
		httpClient:   httpClient,
	}, nil
}

type generationConfig struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule"`
}

type generateRequest struct {
	Text             string           `json:"text"`
	ModelID          string           `json:"model_id"`
	VoiceSettings    Settings         `json:"voice_settings"`
	GenerationConfig generationConfig `json:"generation_config"`
}

// Generate synthesizes text with the profile for ct. onProgress, when set,
// receives the received percentage after each chunk, but only if the reply
// declares its length.
func (c *Client) Generate(ctx context.Context, text string, ct ContentType, onProgress func(float64)) (Audio, error) {
	profile, err := ProfileFor(ct)
	if err != nil {
		return Audio{}, err
	}

	payload, err := json.Marshal(generateRequest{
		Text:             text,
		ModelID:          profile.ModelID,
		VoiceSettings:    profile.Settings,
		GenerationConfig: generationConfig{ChunkLengthSchedule: chunkSchedule},
	})
	if err != nil {
		return Audio{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/elevenlabs", bytes.NewReader(payload))
	if err != nil {
		return Audio{}, err
	}
	c.setAuthHeaders(req)
	req.Header.Set("Accept", audioMPEG)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	defer func() {
		metrics.ObserveVoiceRequestDurationMs(float64(time.Since(start).Milliseconds()))
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Audio{}, ctxErr
		}
		return Audio{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+utf8.UTFMax))
		return Audio{}, &GenerationError{Status: resp.StatusCode, Body: strings.TrimSpace(truncate(string(body), maxErrorBody))}
	}

	data, err := readWithProgress(resp.Body, resp.ContentLength, onProgress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Audio{}, ctxErr
		}
		return Audio{}, fmt.Errorf("%w: read audio: %v", ErrGenerationFailed, err)
	}

	telemetry.Info("voice.generate", map[string]any{
		"content_type": string(ct),
		"voice_id":     profile.VoiceID,
		"chars":        len(text),
		"bytes":        len(data),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	return Audio{Data: data, ContentType: audioMPEG}, nil
}

// readWithProgress accumulates r into one buffer chunk by chunk. The declared
// length only drives progress and a bounded preallocation.
func readWithProgress(r io.Reader, declared int64, onProgress func(float64)) ([]byte, error) {
	var buf bytes.Buffer
	if declared > 0 {
		buf.Grow(int(min(declared, maxPrealloc)))
	}
	chunk := make([]byte, readChunkSize)
	var received int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			received += int64(n)
			if onProgress != nil && declared > 0 {
				onProgress(float64(received) / float64(declared) * 100)
			}
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Voices returns the provider's voice catalogue as raw JSON.
func (c *Client) Voices(ctx context.Context) (json.RawMessage, error) {
	return c.catalogue(ctx, "/elevenlabs/voices")
}

// Models returns the provider's model catalogue as raw JSON.
func (c *Client) Models(ctx context.Context) (json.RawMessage, error) {
	return c.catalogue(ctx, "/elevenlabs/models")
}

func (c *Client) catalogue(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice catalogue %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice catalogue %s: read: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &GenerationError{Status: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("voice catalogue %s: invalid json", path)
	}
	return json.RawMessage(body), nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("X-Rapidapi-Key", c.transportKey)
	req.Header.Set("X-Rapidapi-Host", c.host)
	req.Header.Set("X-Elevenlabs-Api-Key", c.providerKey)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
