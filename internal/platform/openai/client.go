package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/sitechat-backend/internal/observability"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/httpx"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// Message is one chat turn sent to the completions endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

type ChatResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Client is the subset of the OpenAI API the backend uses.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	EmbedModel() string

	// Complete runs a non-streaming chat completion.
	Complete(ctx context.Context, req ChatRequest) (ChatResult, error)

	// StreamChat streams content deltas to onDelta and returns the full text.
	// Returning an error from onDelta aborts the stream.
	StreamChat(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (ChatResult, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	// streaming responses can outlive the regular request timeout
	streamClient *http.Client
	maxRetries   int

	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.String("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	timeout := envutil.Duration("OPENAI_TIMEOUT_SECONDS", 60*time.Second)
	streamTimeout := envutil.Duration("OPENAI_STREAM_TIMEOUT_SECONDS", 5*time.Minute)
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := &client{
		log:          log.With("client", "OpenAI"),
		baseURL:      strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		apiKey:       apiKey,
		model:        envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		embedModel:   envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{Timeout: streamTimeout},
		maxRetries:   maxRetries,
		noTempSeen:   map[string]time.Time{},
		noTempTTL:    envutil.Duration("OPENAI_NO_TEMP_TTL_SECONDS", 6*time.Hour),
	}
	return c, nil
}

func (c *client) EmbedModel() string { return c.embedModel }

func (c *client) modelOrDefault(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return c.model
	}
	return m
}

func (c *client) modelIsNoTemp(model string) bool {
	key := strings.ToLower(strings.TrimSpace(model))
	c.noTempMu.RLock()
	at, ok := c.noTempSeen[key]
	c.noTempMu.RUnlock()
	if !ok {
		return false
	}
	if time.Since(at) > c.noTempTTL {
		c.noTempMu.Lock()
		delete(c.noTempSeen, key)
		c.noTempMu.Unlock()
		return false
	}
	return true
}

func (c *client) noteNoTempModel(model string) {
	key := strings.ToLower(strings.TrimSpace(model))
	if key == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[key] = time.Now()
	c.noTempMu.Unlock()
	c.log.Warn("model rejected temperature; omitting for a while", "model", model)
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(s)
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, needle := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (c *client) doOnce(ctx context.Context, httpClient *http.Client, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpx.StatusError{Service: "openai", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do sends a JSON request, retrying retryable failures with backoff.
func (c *client) do(ctx context.Context, method, path, model string, body any, out any) error {
	backoff := time.Second
	start := time.Now()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, c.httpClient, method, path, body)
		if err == nil {
			in, out2 := extractUsage(raw)
			observability.Current().ObserveLLMRequest(model, path, statusFromResp(resp), time.Since(start), in, out2)
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			observability.Current().ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input, index aligned. A response with holes
// is retried once before failing.
func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	req := embeddingsRequest{Model: c.embedModel, Input: clean}

	for try := 0; try < 2; try++ {
		var resp embeddingsResponse
		if err := c.do(ctx, http.MethodPost, "/v1/embeddings", c.embedModel, req, &resp); err != nil {
			return nil, err
		}
		out := alignEmbeddings(resp, len(clean))
		if !hasMissingEmbeddings(out) {
			return out, nil
		}
		c.log.Warn("Embeddings response missing indices",
			"requested", len(clean),
			"returned", len(resp.Data),
			"model", c.embedModel,
			"try", try+1,
		)
	}
	return nil, fmt.Errorf("openai embeddings missing indices after retry: requested=%d model=%s", len(clean), c.embedModel)
}

func alignEmbeddings(resp embeddingsResponse, n int) [][]float32 {
	out := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < n {
			out[d.Index] = toFloat32(d.Embedding)
		}
	}
	// Some compatible servers omit the index field; fall back to position.
	if hasMissingEmbeddings(out) && len(resp.Data) == n {
		for i := range out {
			if out[i] == nil {
				out[i] = toFloat32(resp.Data[i].Embedding)
			}
		}
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func hasMissingEmbeddings(v [][]float32) bool {
	for i := range v {
		if len(v[i]) == 0 {
			return true
		}
	}
	return false
}

// -------------------- Chat completions --------------------

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatCompletionChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *client) buildChatRequest(req ChatRequest, stream bool) chatCompletionRequest {
	body := chatCompletionRequest{
		Model:       c.modelOrDefault(req.Model),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if body.Temperature != nil && c.modelIsNoTemp(body.Model) {
		body.Temperature = nil
	}
	return body
}

func (c *client) Complete(ctx context.Context, req ChatRequest) (ChatResult, error) {
	if len(req.Messages) == 0 {
		return ChatResult{}, fmt.Errorf("messages required")
	}
	body := c.buildChatRequest(req, false)

	var resp chatCompletionResponse
	err := c.do(ctx, http.MethodPost, "/v1/chat/completions", body.Model, body, &resp)
	if err != nil && body.Temperature != nil && isUnsupportedTemperatureMessage(err.Error()) {
		c.noteNoTempModel(body.Model)
		body.Temperature = nil
		err = c.do(ctx, http.MethodPost, "/v1/chat/completions", body.Model, body, &resp)
	}
	if err != nil {
		return ChatResult{}, err
	}
	if len(resp.Choices) == 0 {
		return ChatResult{}, fmt.Errorf("openai: empty choices")
	}
	res := ChatResult{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: resp.Choices[0].FinishReason,
	}
	if resp.Usage != nil {
		res.InputTokens = resp.Usage.PromptTokens
		res.OutputTokens = resp.Usage.CompletionTokens
	}
	return res, nil
}

func (c *client) openStream(ctx context.Context, body chatCompletionRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return nil, &httpx.StatusError{Service: "openai", StatusCode: resp.StatusCode, Body: string(raw)}
}

// openStreamWithRetry retries only the connection phase. Once deltas have
// been delivered a retry would duplicate output.
func (c *client) openStreamWithRetry(ctx context.Context, body *chatCompletionRequest) (*http.Response, error) {
	backoff := time.Second
	triedNoTemp := false
	for attempt := 0; ; attempt++ {
		resp, err := c.openStream(ctx, *body)
		if err == nil {
			return resp, nil
		}
		if body.Temperature != nil && !triedNoTemp && isUnsupportedTemperatureMessage(err.Error()) {
			triedNoTemp = true
			c.noteNoTempModel(body.Model)
			body.Temperature = nil
			continue
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("OpenAI stream connect retrying", "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if sErr := httpx.Sleep(ctx, sleepFor); sErr != nil {
			return nil, sErr
		}
		backoff *= 2
	}
}

func (c *client) StreamChat(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (ChatResult, error) {
	if len(req.Messages) == 0 {
		return ChatResult{}, fmt.Errorf("messages required")
	}
	body := c.buildChatRequest(req, true)
	start := time.Now()
	inputTokens := 0
	for _, m := range req.Messages {
		inputTokens += estimateTokens(m.Content)
	}

	resp, err := c.openStreamWithRetry(ctx, &body)
	if err != nil {
		observability.Current().ObserveLLMRequest(body.Model, "/v1/chat/completions", statusFromRespErr(nil, err), time.Since(start), inputTokens, 0)
		return ChatResult{}, err
	}
	defer resp.Body.Close()

	res := ChatResult{Model: body.Model}
	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("openai stream error: %s", chunk.Error.Message)
		}
		if chunk.Model != "" {
			res.Model = chunk.Model
		}
		if chunk.Usage != nil {
			res.InputTokens = chunk.Usage.PromptTokens
			res.OutputTokens = chunk.Usage.CompletionTokens
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Refusal != "" {
				return fmt.Errorf("model refused: %s", ch.Delta.Refusal)
			}
			if ch.FinishReason != nil {
				res.FinishReason = *ch.FinishReason
			}
			d := strings.TrimRight(ch.Delta.Content, "\u0000")
			if d == "" {
				continue
			}
			full.WriteString(d)
			if onDelta != nil {
				if err := onDelta(d); err != nil {
					return err
				}
			}
		}
		return nil
	})
	res.Text = full.String()
	if res.InputTokens == 0 {
		res.InputTokens = inputTokens
	}
	if res.OutputTokens == 0 {
		res.OutputTokens = estimateTokens(res.Text)
	}
	status := statusFromResp(resp)
	if err != nil {
		status = statusFromRespErr(nil, err)
	}
	observability.Current().ObserveLLMRequest(res.Model, "/v1/chat/completions", status, time.Since(start), res.InputTokens, res.OutputTokens)
	if err != nil {
		return res, err
	}
	return res, nil
}

// -------------------- helpers --------------------

func extractUsage(raw []byte) (int, int) {
	if len(raw) == 0 {
		return 0, 0
	}
	var payload struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Usage == nil {
		return 0, 0
	}
	u := payload.Usage
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return u.TotalTokens, 0
	}
	return u.PromptTokens, u.CompletionTokens
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *httpx.StatusError
	if err != nil && errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func estimateTokens(text string) int {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
