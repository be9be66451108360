package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/warmleadnetwork/voice-call-service/pkg/logger"
	"go.uber.org/zap"
)

// Message is one turn of conversation context sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Responder produces the agent's next utterance given the conversation so
// far. The webhook state machine depends on this interface, never on a
// concrete provider.
type Responder interface {
	Respond(ctx context.Context, persona string, history []Message) (string, error)
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewChatClientFromEnv builds a chat client from environment configuration.
func NewChatClientFromEnv() *ChatClient {
	baseURL := os.Getenv("AI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := os.Getenv("AI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ChatClient{
		BaseURL: baseURL,
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   model,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Respond sends the persona plus history and returns the model's reply.
// Replies are capped short; this text is spoken over a phone line.
func (c *ChatClient) Respond(ctx context.Context, persona string, history []Message) (string, error) {
	messages := make([]Message, 0, len(history)+1)
	if persona != "" {
		messages = append(messages, Message{Role: "system", Content: persona})
	}
	messages = append(messages, history...)

	body := chatRequest{
		Model:       c.Model,
		Messages:    messages,
		MaxTokens:   150,
		Temperature: 0.7,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	url := c.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Base().Error("chat completion failed",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", bodyBytes))
		return "", fmt.Errorf("chat completion returned status %d", resp.StatusCode)
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %v", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}
