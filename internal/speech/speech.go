// Package speech wraps the external speech service used by the realtime
// adapter: speech-to-text with translation to English, text translation, and
// text-to-speech synthesis. The service holds no state; every call is a
// bounded, retried HTTP request.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultBaseURL is the production speech API endpoint.
const DefaultBaseURL = "https://api.sarvam.ai"

// DefaultLanguage is the language the engine converses in; transcriptions are
// always translated to it, and outbound text in it skips translation.
const DefaultLanguage = "en-IN"

const (
	defaultTimeout = 30 * time.Second
	retryAttempts  = 3
	retryDelay     = 500 * time.Millisecond
)

// Opts holds configuration for the speech client.
type Opts struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Option configures Opts.
type Option func(*Opts)

// WithAPIKey sets the API subscription key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Transcription is the result of one speech-to-text call. Text is always
// English; LanguageCode is the language the service detected in the audio.
type Transcription struct {
	Text         string
	LanguageCode string
}

// Client calls the speech service.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a speech client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("speech API key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// statusError marks a non-retryable HTTP status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("speech API returned status %d: %s", e.code, e.body)
}

// Transcribe uploads WAV audio and returns its English transcription along
// with the detected source language.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{}, fmt.Errorf("empty audio data")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return Transcription{}, fmt.Errorf("failed to write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Transcription{}, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	var resp struct {
		Transcript   string `json:"transcript"`
		LanguageCode string `json:"language_code"`
	}
	err = c.do(ctx, "/speech-to-text-translate", writer.FormDataContentType(), body.Bytes(), &resp)
	if err != nil {
		return Transcription{}, fmt.Errorf("speech-to-text failed: %w", err)
	}
	slog.Debug("speech.Transcribe: audio transcribed", "length", len(resp.Transcript), "detected_language", resp.LanguageCode)
	return Transcription{Text: resp.Transcript, LanguageCode: resp.LanguageCode}, nil
}

// Translate translates text between language codes. Same-language calls
// return the input unchanged without a network round trip.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == targetLang || text == "" {
		return text, nil
	}

	payload, err := json.Marshal(map[string]string{
		"input":                text,
		"source_language_code": sourceLang,
		"target_language_code": targetLang,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal translate request: %w", err)
	}

	var resp struct {
		TranslatedText string `json:"translated_text"`
	}
	if err := c.do(ctx, "/translate", "application/json", payload, &resp); err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if resp.TranslatedText == "" {
		return "", fmt.Errorf("translation returned empty text")
	}
	return resp.TranslatedText, nil
}

// Synthesize converts text to speech in the target language and returns the
// decoded WAV bytes.
func (c *Client) Synthesize(ctx context.Context, text, targetLang string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"inputs":               []string{text},
		"target_language_code": targetLang,
		"speech_sample_rate":   8000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	var resp struct {
		Audios []string `json:"audios"`
	}
	if err := c.do(ctx, "/text-to-speech", "application/json", payload, &resp); err != nil {
		return nil, fmt.Errorf("text-to-speech failed: %w", err)
	}
	if len(resp.Audios) == 0 {
		return nil, fmt.Errorf("text-to-speech returned no audio")
	}
	audio, err := base64.StdEncoding.DecodeString(resp.Audios[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	slog.Debug("speech.Synthesize: audio generated", "language", targetLang, "bytes", len(audio))
	return audio, nil
}

// do posts a request and decodes the JSON response, retrying transport
// errors and 5xx responses.
func (c *Client) do(ctx context.Context, path, contentType string, body []byte, out interface{}) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to build request: %w", err))
			}
			req.Header.Set("Content-Type", contentType)
			req.Header.Set("api-subscription-key", c.apiKey)

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("request to %s failed: %w", path, err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed to read response from %s: %w", path, err)
			}
			if resp.StatusCode >= 500 {
				return &statusError{code: resp.StatusCode, body: string(raw)}
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(&statusError{code: resp.StatusCode, body: string(raw)})
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode response from %s: %w", path, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
