package localllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"recipebook/internal/ingredient"
)

// DefaultURL is the chat completions endpoint of a local LM Studio server.
const DefaultURL = "http://localhost:1234/v1/chat/completions"

// Client represents a client for the local LLM.
type Client struct {
	httpClient *http.Client
	apiURL     string
	model      string
}

// NewClient creates a new client for the local LLM. An empty apiURL uses DefaultURL.
func NewClient(apiURL string) *Client {
	if apiURL == "" {
		apiURL = DefaultURL
	}
	return &Client{
		httpClient: &http.Client{},
		apiURL:     apiURL,
		model:      "gemma-3-12b-it:2",
	}
}

// Request represents the request body for the local LLM.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Message represents a message in the request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents the response from the local LLM.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message Message `json:"message"`
}

// GenerateContent sends a prompt to the local LLM and returns the answer.
func (c *Client) GenerateContent(ctx context.Context, text string) (string, error) {
	reqBody := Request{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: text}},
		Temperature: 0,
		MaxTokens:   16,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-OK status code: %d", resp.StatusCode)
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(llmResp.Choices) > 0 {
		log.Printf("LLM Response: %s", llmResp.Choices[0].Message.Content)
		return llmResp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("no content found in response")
}

// DetectLanguage asks the local model which language an ingredient name is in.
func (c *Client) DetectLanguage(ctx context.Context, name string) (string, error) {
	answer, err := c.GenerateContent(ctx, ingredient.DetectionPrompt(name))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return ingredient.ParseLanguageAnswer(answer)
}
