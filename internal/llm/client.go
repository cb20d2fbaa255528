// Package llm provides free-form chat through an OpenAI-compatible
// completion endpoint, with per-identity conversation history.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// historyLimit caps how many messages are kept per identity. Oldest
// messages are dropped first; the system prompt is never stored.
const historyLimit = 20

const systemPrompt = `You are Carik, a helpful assistant living in a chat bot. Answer concisely in plain text. Do not use markdown.`

// Config holds parameters for the chat provider. An empty APIURL
// disables the client.
type Config struct {
	APIURL    string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// message is one entry of a chat transcript.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends chat completions and remembers recent exchanges per
// identity so follow-up messages carry context.
type Client struct {
	cfg   Config
	httpc *http.Client

	mu      sync.Mutex
	history map[string][]message
}

// New creates a chat client. Zero MaxTokens and Timeout fall back to
// sensible defaults.
func New(cfg Config) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		history: make(map[string][]message),
	}
}

// Enabled reports whether a provider endpoint is configured.
func (c *Client) Enabled() bool { return c.cfg.APIURL != "" }

// Chat sends text on behalf of identity and returns the model reply.
// The exchange is appended to the identity's history only on success.
func (c *Client) Chat(ctx context.Context, identity, text string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("chat provider not configured")
	}

	c.mu.Lock()
	past := c.history[identity]
	messages := make([]message, 0, len(past)+2)
	messages = append(messages, message{Role: "system", Content: systemPrompt})
	messages = append(messages, past...)
	messages = append(messages, message{Role: "user", Content: text})
	c.mu.Unlock()

	reply, err := c.complete(ctx, messages)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	hist := append(c.history[identity],
		message{Role: "user", Content: text},
		message{Role: "assistant", Content: reply},
	)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	c.history[identity] = hist
	c.mu.Unlock()

	return reply, nil
}

// Clear forgets the identity's conversation history.
func (c *Client) Clear(identity string) {
	c.mu.Lock()
	delete(c.history, identity)
	c.mu.Unlock()
}

// complete performs one chat-completion request.
func (c *Client) complete(ctx context.Context, messages []message) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"model":      c.cfg.Model,
		"messages":   messages,
		"max_tokens": c.cfg.MaxTokens,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || len(result.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
