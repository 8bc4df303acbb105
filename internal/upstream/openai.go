package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig holds configuration for one OpenAI-backed target.
type OpenAIConfig struct {
	Name      string // target name for logging/breaker bookkeeping
	APIKey    string
	Model     string
	MaxTokens int           // completion token cap per call
	Timeout   time.Duration // HTTP timeout
	BaseURL   string        // optional (tests, proxies)
	// TargetLanguage is the language Translate renders into.
	TargetLanguage string

	HTTPClient *http.Client // optional (tests)
}

// OpenAIClient implements Client using the official OpenAI SDK. SDK-level
// retries are disabled; the fallback layer owns retry policy.
type OpenAIClient struct {
	name           string
	model          string
	maxTokens      int
	targetLanguage string
	client         openai.Client
}

// NewOpenAIClient creates a new OpenAI-backed target.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4o)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "English"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		name:           cfg.Name,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		targetLanguage: cfg.TargetLanguage,
		client:         openai.NewClient(opts...),
	}
}

// Name returns the target identifier.
func (c *OpenAIClient) Name() string { return c.name }

// Analyze extracts entities from a batch of units in one chat completion.
func (c *OpenAIClient) Analyze(ctx context.Context, meta WorkMeta, units []UnitText, hint RangeHint) (*ExtractionResult, error) {
	if len(units) == 0 {
		return nil, Fatal(c.name, fmt.Errorf("analyze called with no units"))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Work: %s", meta.Title)
	if meta.Author != "" {
		fmt.Fprintf(&sb, " by %s", meta.Author)
	}
	fmt.Fprintf(&sb, "\nCovers installments %d through %d.\n\n", hint.FirstSeq, hint.LastSeq)
	for _, u := range units {
		fmt.Fprintf(&sb, "### Installment %d: %s\n%s\n\n", u.SeqNum, u.Title, u.Body)
	}

	content, err := c.complete(ctx, analyzeSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	result, err := ParseExtraction(content)
	if err != nil {
		// Malformed output is retryable: the next attempt usually parses.
		return nil, Transient(c.name, err)
	}
	return result, nil
}

// Translate renders one chunk of text into the target language.
func (c *OpenAIClient) Translate(ctx context.Context, text string, tc TranslateContext) (string, error) {
	var sb strings.Builder
	if len(tc.Glossary) > 0 {
		sb.WriteString("Glossary (use these established translations):\n")
		for original, translated := range tc.Glossary {
			fmt.Fprintf(&sb, "- %s => %s\n", original, translated)
		}
		sb.WriteString("\n")
	}
	if tc.Preceding != "" {
		fmt.Fprintf(&sb, "Preceding translated text (for continuity):\n%s\n\n", tc.Preceding)
	}
	fmt.Fprintf(&sb, "Translate the following into %s. Output only the translation.\n\n%s", c.targetLanguage, text)

	out, err := c.complete(ctx, translateSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", Transient(c.name, fmt.Errorf("empty translation output"))
	}
	return out, nil
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", Transient(c.name, fmt.Errorf("no choices in response"))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", Transient(c.name, fmt.Errorf("empty completion content"))
	}
	return content, nil
}

// mapError translates SDK errors into the package taxonomy.
func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return Fatal(c.name, fmt.Errorf("auth rejected (status %d): %s", apiErr.StatusCode, apiErr.Message))
		case apiErr.StatusCode == http.StatusBadRequest:
			// Includes content-policy rejections; retrying the same input
			// cannot succeed.
			return Fatal(c.name, fmt.Errorf("request rejected (status %d): %s", apiErr.StatusCode, apiErr.Message))
		case apiErr.Code == "insufficient_quota" || apiErr.StatusCode == http.StatusPaymentRequired:
			// Capacity exhaustion: abandon this target and trip its breaker.
			return TargetUnavailable(c.name, true, fmt.Errorf("quota exhausted: %s", apiErr.Message))
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return RateLimited(c.name, fmt.Errorf("rate limited: %s", apiErr.Message))
		case apiErr.StatusCode == http.StatusBadGateway ||
			apiErr.StatusCode == http.StatusServiceUnavailable ||
			apiErr.StatusCode == http.StatusGatewayTimeout:
			return TargetUnavailable(c.name, false, fmt.Errorf("target unavailable (status %d): %s", apiErr.StatusCode, apiErr.Message))
		case apiErr.StatusCode >= 500:
			return Transient(c.name, fmt.Errorf("server error (status %d): %s", apiErr.StatusCode, apiErr.Message))
		}
		return Transient(c.name, fmt.Errorf("API error (status %d): %s", apiErr.StatusCode, apiErr.Message))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(c.name, fmt.Errorf("request timed out: %w", err))
	}
	return Transient(c.name, err)
}

const analyzeSystemPrompt = `You analyze serialized fiction. Extract every character, recurring term, and timeline event from the installments you are given. Respond with a single JSON object with keys "characters", "terms", "events", and optionally "notes". Each character has "name" plus optional "aliases", "description", "role". Each term has "original" plus optional "translation", "category", "variants", "notes". Each event has "title" and "start_seq" plus optional "summary" and "characters". Output JSON only.`

const translateSystemPrompt = `You are a literary translator. Preserve tone, names, and formatting. Output only the translated text with no commentary.`
