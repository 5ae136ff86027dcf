package moderator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// policyPrompt is the fixed chat policy sent with every classification.
const policyPrompt = `You are a chat moderator for a live streaming platform. Decide whether a chat message is appropriate.
Reject messages that contain:
- insults or personal attacks
- hate speech or slurs
- harassment or bullying
- explicit sexual content
- threats of violence
- spam, scams or repeated advertising
Casual language, mild profanity, jokes and gaming banter are acceptable.
Respond only with JSON: {"isAppropriate": true|false, "reason": "short explanation"}`

// Provider defaults
var providerDefaults = map[string]struct{ baseURL, model string }{
	"openai": {"https://api.openai.com/v1", "gpt-3.5-turbo"},
	"groq":   {"https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
}

var ErrClassifierUnavailable = errors.New("classifier not configured")

// Classification is the raw classifier answer.
type Classification struct {
	Appropriate bool
	Reason      string
}

// Classifier labels chat text.
type Classifier interface {
	Classify(ctx context.Context, content string) (Classification, error)
}

// ChatCompletionClassifier calls an OpenAI compatible chat completions API.
type ChatCompletionClassifier struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewChatCompletionClassifier fills base URL and model from the provider
// defaults when they are empty.
func NewChatCompletionClassifier(provider, apiKey, baseURL, model string) *ChatCompletionClassifier {
	d := providerDefaults[provider]
	if baseURL == "" {
		baseURL = d.baseURL
	}
	if model == "" {
		model = d.model
	}
	return &ChatCompletionClassifier{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		HTTPClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type verdictJSON struct {
	IsAppropriate *bool  `json:"isAppropriate"`
	Reason        string `json:"reason"`
}

func (c *ChatCompletionClassifier) Classify(ctx context.Context, content string) (Classification, error) {
	if c.APIKey == "" {
		return Classification{}, ErrClassifierUnavailable
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: policyPrompt},
			{Role: "user", Content: content},
		},
		Temperature:    0.3,
		MaxTokens:      150,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Classification{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Classification{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("classifier request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Classification{}, fmt.Errorf("classifier status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Classification{}, fmt.Errorf("classifier decode: %w", err)
	}
	if len(body.Choices) == 0 {
		return Classification{}, fmt.Errorf("classifier returned no choices")
	}

	var v verdictJSON
	if err := json.Unmarshal([]byte(body.Choices[0].Message.Content), &v); err != nil {
		return Classification{}, fmt.Errorf("classifier verdict decode: %w", err)
	}
	if v.IsAppropriate == nil {
		return Classification{}, fmt.Errorf("classifier verdict missing isAppropriate")
	}
	return Classification{Appropriate: *v.IsAppropriate, Reason: v.Reason}, nil
}
