package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const systemPrompt = `You are a crypto portfolio analyst. Given portfolio risk
metrics, health scores, alerts and a rebalancing plan as JSON, write 3-5
short plain-language insights, one per line. No preamble, no markdown.`

// LLMClient summarizes analysis results through an OpenAI-compatible chat
// completions endpoint.
type LLMClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// LLMConfig configures the narrative client.
type LLMConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewLLMClient creates a narrative summarizer backed by an LLM gateway.
func NewLLMClient(config LLMConfig) *LLMClient {
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8080/v1/chat/completions"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.4
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 600
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &LLMClient{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize sends the analysis results to the LLM and returns one insight
// per non-empty response line.
func (c *LLMClient) Summarize(ctx context.Context, results map[string]any) ([]string, error) {
	payload, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	request := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm gateway returned %d", resp.StatusCode)
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("llm response has no choices")
	}

	var insights []string
	for _, line := range strings.Split(response.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line != "" {
			insights = append(insights, line)
		}
	}

	log.Debug().
		Str("model", c.model).
		Int("insights", len(insights)).
		Dur("duration", time.Since(start)).
		Msg("Narrative generated")

	return insights, nil
}
