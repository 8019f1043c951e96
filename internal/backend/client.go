package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/dispatch"
)

// APIError is a typed backend failure. Status carries the HTTP status code,
// or 0 for transport-level failures; Details carries the response body text
// or the underlying error message.
type APIError struct {
	Status  int
	Details string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend transport error: %s", e.Details)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Details)
}

// Config contains backend client configuration.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Client provides the five whisper-service operations over the request
// coordinator.
type Client struct {
	config     Config
	httpClient *http.Client
	coord      *dispatch.Coordinator
	semaphore  chan struct{}
}

// HealthStatus is the GET /health response.
type HealthStatus struct {
	Status         string   `json:"status"`
	Model          string   `json:"model"`
	Device         string   `json:"device"`
	GPUAvailable   bool     `json:"gpu_available"`
	SupportedTasks []string `json:"supported_tasks"`
}

// Segment is one timed span of recognized text.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the response shape shared by /transcribe and
// /translate_audio_to_language.
type TranscriptionResult struct {
	Text             string    `json:"text"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	Segments         []Segment `json:"segments,omitempty"`
	ProcessingTime   float64   `json:"processing_time"`
	Task             string    `json:"task"`
}

// AudioOptions parameterize the audio operations.
type AudioOptions struct {
	SourceLanguage string
	TargetLanguage string
	ReturnSegments bool
}

// TextRequest is the POST /translate_text request.
type TextRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// TextTranslation is the POST /translate_text response.
type TextTranslation struct {
	TranslatedText   string  `json:"translated_text"`
	SourceLanguage   string  `json:"source_language"`
	TargetLanguage   string  `json:"target_language"`
	DetectedLanguage string  `json:"detected_language"`
	ProcessingTime   float64 `json:"processing_time"`
}

// LanguageDetection is the POST /detect_language response.
type LanguageDetection struct {
	DetectedLanguage string `json:"detected_language"`
	Confidence       string `json:"confidence"`
	TextPreview      string `json:"text_preview"`
}

// Languages is the GET /languages response.
type Languages struct {
	InputLanguages  []string `json:"input_languages"`
	OutputLanguages []string `json:"output_languages"`
	Note            string   `json:"note"`
}

// NewClient creates a backend client over the given coordinator.
func NewClient(config Config, coord *dispatch.Coordinator) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = dispatch.DefaultTimeout
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if coord == nil {
		coord = dispatch.NewCoordinator(dispatch.Config{
			Timeout:    config.Timeout,
			MaxRetries: config.MaxRetries,
		})
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		coord:      coord,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Coordinator exposes the client's request coordinator.
func (c *Client) Coordinator() *dispatch.Coordinator {
	return c.coord
}

// Health checks backend availability.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	body, err := c.call(ctx, http.MethodGet, "/health", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var status HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	return &status, nil
}

// Transcribe recognizes audio in its original language.
func (c *Client) Transcribe(ctx context.Context, audio []byte, opts AudioOptions) (*TranscriptionResult, error) {
	body, contentType, err := audioForm(audio, opts, false)
	if err != nil {
		return nil, err
	}

	respBody, err := c.call(ctx, http.MethodPost, "/transcribe", body, audioKey(audio, opts), contentType)
	if err != nil {
		return nil, err
	}

	var result TranscriptionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse transcription response: %w", err)
	}

	return &result, nil
}

// TranslateAudio recognizes audio and translates the text to the target
// language in one backend round trip.
func (c *Client) TranslateAudio(ctx context.Context, audio []byte, opts AudioOptions) (*TranscriptionResult, error) {
	body, contentType, err := audioForm(audio, opts, true)
	if err != nil {
		return nil, err
	}

	respBody, err := c.call(ctx, http.MethodPost, "/translate_audio_to_language", body, audioKey(audio, opts), contentType)
	if err != nil {
		return nil, err
	}

	var result TranscriptionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse translation response: %w", err)
	}

	return &result, nil
}

// TranslateToEnglish recognizes audio with whisper's built-in translate
// task. The backend only supports English output on this path, so the
// target language is pinned regardless of opts.
func (c *Client) TranslateToEnglish(ctx context.Context, audio []byte, opts AudioOptions) (*TranscriptionResult, error) {
	opts.TargetLanguage = "en"
	body, contentType, err := audioForm(audio, opts, true)
	if err != nil {
		return nil, err
	}

	respBody, err := c.call(ctx, http.MethodPost, "/translate", body, audioKey(audio, opts), contentType)
	if err != nil {
		return nil, err
	}

	var result TranscriptionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse translation response: %w", err)
	}

	return &result, nil
}

// TranslateText translates already-recognized text.
func (c *Client) TranslateText(ctx context.Context, req TextRequest) (*TextTranslation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode translation request: %w", err)
	}

	respBody, err := c.call(ctx, http.MethodPost, "/translate_text", body, body, "application/json")
	if err != nil {
		return nil, err
	}

	var result TextTranslation
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse text translation response: %w", err)
	}

	return &result, nil
}

// DetectLanguage identifies the spoken language of an audio payload.
func (c *Client) DetectLanguage(ctx context.Context, audio []byte) (*LanguageDetection, error) {
	body, contentType, err := audioForm(audio, AudioOptions{}, false)
	if err != nil {
		return nil, err
	}

	respBody, err := c.call(ctx, http.MethodPost, "/detect_language", body, audio, contentType)
	if err != nil {
		return nil, err
	}

	var result LanguageDetection
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse language detection response: %w", err)
	}

	return &result, nil
}

// SupportedLanguages lists the backend's input and output languages.
func (c *Client) SupportedLanguages(ctx context.Context) (*Languages, error) {
	body, err := c.call(ctx, http.MethodGet, "/languages", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var result Languages
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse languages response: %w", err)
	}

	return &result, nil
}

// call routes one request through the coordinator and maps failures to
// typed errors. keyBody is the request identity used for dedup: the inner
// payload rather than the encoded body, since multipart boundaries are
// random and would defeat dedup of genuinely identical requests.
func (c *Client) call(ctx context.Context, method, path string, body, keyBody []byte, contentType string) ([]byte, error) {
	result, err := c.coord.Do(ctx, method, path, keyBody, func(callCtx context.Context) (interface{}, error) {
		select {
		case c.semaphore <- struct{}{}:
			defer func() { <-c.semaphore }()
		case <-callCtx.Done():
			return nil, callCtx.Err()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(callCtx, method, c.config.BaseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &APIError{Status: 0, Details: err.Error()}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{Status: 0, Details: err.Error()}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Details: string(respBody)}
		}

		return respBody, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// audioKey builds the dedup identity for an audio operation: the language
// options followed by the raw payload.
func audioKey(audio []byte, opts AudioOptions) []byte {
	key := make([]byte, 0, len(audio)+32)
	key = append(key, []byte(opts.SourceLanguage+"|"+opts.TargetLanguage+"|")...)
	return append(key, audio...)
}

// audioForm builds the multipart body shared by the audio operations.
func audioForm(audio []byte, opts AudioOptions, includeTarget bool) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("audio_file", "chunk.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio payload: %w", err)
	}

	fields := map[string]string{
		"return_segments": strconv.FormatBool(opts.ReturnSegments),
		"return_language": "true",
	}

	if opts.SourceLanguage != "" && opts.SourceLanguage != "auto" {
		fields["source_language"] = opts.SourceLanguage
	}

	if includeTarget {
		target := opts.TargetLanguage
		if target == "" {
			target = "en"
		}
		fields["target_language"] = target
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
