package warn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ChatClient calls an OpenAI-compatible chat-completions endpoint to phrase
// warnings for the protected user.
type ChatClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream,omitempty"`
}

// Two spoken sentences; anything longer gets discarded by the generator.
const maxCompletionTokens = 120

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewChatClient(baseURL, apiKey, model string) *ChatClient {
	return &ChatClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
	}
}

const systemPrompt = "You warn an elderly person that their current phone call shows signs of a scam. " +
	"Speak directly to them in two short, calm sentences. Name the specific danger. " +
	"Tell them to hang up and call a family member. Never mention AI or monitoring."

func (c *ChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("chat api key missing")
	}
	endpoint := c.BaseURL + "/v1/chat/completions"

	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:     c.Model,
		Messages:  messages,
		MaxTokens: maxCompletionTokens,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
