package anthropic

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

const defaultBaseURL = "https://api.anthropic.com"

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// WithBaseURL points the client at a different API host (proxies, tests).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// Model returns the model identifier requests are sent with.
func (c *Client) Model() string {
	return c.model
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the text of a response plus the tokens it cost.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Tokens is the total token usage of the completion.
func (c Completion) Tokens() int {
	return c.InputTokens + c.OutputTokens
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a message to the Anthropic API and returns the text response.
func (c *Client) Complete(ctx context.Context, system string, messages []Message, maxTokens int) (Completion, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Type != "" {
			return Completion{}, fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return Completion{}, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Completion{}, fmt.Errorf("unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, fmt.Errorf("empty response content")
	}

	return Completion{
		Text:         text.String(),
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
	}, nil
}

// ExtractJSON finds the JSON value in a model response that accept takes.
// Fenced code blocks are tried first, then every '{' or '[' in text in
// order, so preamble such as "see [1] below" is skipped when accept rejects
// it. A nil accept takes the first value that parses.
func ExtractJSON(text string, accept func(raw string) error) (string, error) {
	var lastErr error
	try := func(s string) (string, bool) {
		raw, err := firstValue(s)
		if err == nil && accept != nil {
			err = accept(raw)
		}
		if err != nil {
			lastErr = err
			return "", false
		}
		return raw, true
	}

	for _, block := range fencedBlocks(text) {
		if raw, ok := try(block); ok {
			return raw, nil
		}
	}
	for i, r := range text {
		if r != '{' && r != '[' {
			continue
		}
		if raw, ok := try(text[i:]); ok {
			return raw, nil
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("no usable json value in response: %w", lastErr)
	}
	return "", fmt.Errorf("no json value in response")
}

// firstValue decodes the JSON value at the start of s, ignoring what follows.
func firstValue(s string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", fmt.Errorf("decode json value: %w", err)
	}
	return string(raw), nil
}

// fencedBlocks returns the bodies of ``` fenced blocks, dropping the info
// string after the opening fence.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return blocks
		}
		rest = rest[open+3:]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return blocks
		}
		body := rest[nl+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, body[:end])
		rest = body[end+3:]
	}
}
