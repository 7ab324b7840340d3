package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// Analyzer resolves an utterance into a dictionary entry.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*WordEntry, error)
}

// Config contains lookup client parameters.
type Config struct {
	APIKey     string
	BaseURL    string // empty uses the provider default
	Model      string
	SourceLang string // ISO 639-1 code of the language being learned
	TargetLang string // ISO 639-1 code of the learner's language
	Timeout    time.Duration
}

// Client performs semantic lookups through a chat-completion API. The model
// is asked for a single JSON object so the response can be decoded directly
// into a WordEntry.
type Client struct {
	api    *openai.Client
	config Config
	logger *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Stats represents lookup client statistics for monitoring
type Stats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a lookup client.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("lookup API key cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = config.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		config: config,
		logger: logger,
	}, nil
}

// modelResponse matches the JSON object the prompt asks the model for.
type modelResponse struct {
	Phonetic    string `json:"phonetic"`
	Translation string `json:"translation"`
	Explanation string `json:"explanation"`
	Synonyms    []string `json:"synonyms"`
	Examples    []struct {
		Source      string `json:"source"`
		Translation string `json:"translation"`
	} `json:"examples"`
}

// Analyze resolves text into a dictionary entry. The request is not retried;
// the caller decides whether the utterance gets another attempt.
func (c *Client) Analyze(ctx context.Context, text string) (*WordEntry, error) {
	c.incrementTotalRequests()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	startTime := time.Now()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: c.systemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})

	responseTime := time.Since(startTime)

	if err != nil {
		c.incrementFailedRequests()
		c.logger.Warn("Lookup request failed",
			slog.String("text", text),
			slog.String("error", err.Error()),
			slog.Duration("response_time", responseTime),
		)
		return nil, fmt.Errorf("lookup request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("lookup response contained no choices")
	}

	var parsed modelResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to parse lookup response: %w", err)
	}

	entry := &WordEntry{
		ID:          uuid.NewString(),
		Original:    text,
		Phonetic:    parsed.Phonetic,
		Translation: parsed.Translation,
		Explanation: parsed.Explanation,
		Synonyms:    parsed.Synonyms,
		Timestamp:   time.Now().UnixMilli(),
	}
	for _, ex := range parsed.Examples {
		entry.Examples = append(entry.Examples, ExamplePair{
			Source:      ex.Source,
			Translation: ex.Translation,
		})
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(responseTime)

	c.logger.Info("Lookup completed",
		slog.String("text", text),
		slog.String("translation", entry.Translation),
		slog.Duration("response_time", responseTime),
	)

	return entry, nil
}

func (c *Client) systemPrompt() string {
	source := languageName(c.config.SourceLang)
	target := languageName(c.config.TargetLang)

	return fmt.Sprintf(`You are a dictionary assistant for a %s learner whose native language is %s. `+
		`The user sends a word or short phrase in %s. Respond with a single JSON object with these keys: `+
		`"phonetic" (IPA transcription of the input), `+
		`"translation" (translation into %s), `+
		`"explanation" (one or two sentences in %s explaining meaning and usage), `+
		`"synonyms" (array of up to 3 %s synonyms), `+
		`"examples" (array of 2 objects with "source" being an example sentence in %s and "translation" its %s translation). `+
		`Respond with JSON only.`,
		source, target, source, target, target, source, source, target)
}

// languageName maps an ISO 639-1 code to an English language name for the
// prompt. Unknown codes pass through unchanged; the model copes.
func languageName(code string) string {
	names := map[string]string{
		"no": "Norwegian",
		"nb": "Norwegian",
		"uk": "Ukrainian",
		"en": "English",
		"de": "German",
		"fr": "French",
		"es": "Spanish",
		"it": "Italian",
		"pl": "Polish",
		"sv": "Swedish",
		"da": "Danish",
		"ru": "Russian",
	}
	if name, ok := names[code]; ok {
		return name
	}
	return code
}

// GetStats returns current lookup statistics
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		AvgResponseTime: c.avgResponseTime,
	}
	if c.totalRequests > 0 {
		stats.SuccessRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}
	return stats
}

func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	c.successRequests++
	c.mu.Unlock()
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	c.failedRequests++
	c.mu.Unlock()
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}
