// Package lisp generates AutoLISP scripts from natural-language drawing
// descriptions through an OpenAI-compatible chat-completions endpoint.
package lisp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fossapp/internal/generate"
)

const defaultTimeout = 60 * time.Second

const systemPrompt = "You are an AutoCAD automation expert. Respond with a single " +
	"complete AutoLISP script and nothing else. The script must define and invoke " +
	"one command function, use only standard AutoCAD commands, and draw in model space."

// Per-1K-token prices in USD. Unknown models are billed at the baseline
// rate so accumulated cost never silently reads zero.
var modelPricing = map[string]struct{ in, out float64 }{
	"gpt-4o-mini": {in: 0.00015, out: 0.0006},
	"gpt-4o":      {in: 0.0025, out: 0.01},
}

const (
	baselinePriceIn  = 0.00015
	baselinePriceOut = 0.0006
)

// Options configures the script generation client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client calls the chat-completions API and reports per-call spend from the
// usage block.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("lisp: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		client:  client,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateScript implements generate.ScriptGenerator. On repair attempts
// the prior conversation is replayed so the model sees its own failed
// script alongside the extracted error context.
func (c *Client) GenerateScript(ctx context.Context, req generate.ScriptRequest) (*generate.ScriptResult, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	for _, turn := range req.Conversation {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: buildUserPrompt(req)})

	payload := chatRequest{Model: req.Model, Messages: messages, Temperature: 0.2}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("lisp: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, fmt.Errorf("lisp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lisp: request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("lisp: status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("lisp: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("lisp: no choices in response")
	}
	raw := strings.TrimSpace(out.Choices[0].Message.Content)
	script := extractScript(raw)
	if script == "" {
		return nil, errors.New("lisp: empty script in response")
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	return &generate.ScriptResult{
		Script:    script,
		Model:     model,
		CostUSD:   cost(model, out.Usage.PromptTokens, out.Usage.CompletionTokens),
		TokensIn:  out.Usage.PromptTokens,
		TokensOut: out.Usage.CompletionTokens,
		Reply:     generate.Turn{Role: "assistant", Content: raw},
	}, nil
}

func buildUserPrompt(req generate.ScriptRequest) string {
	if req.PreviousScript == "" {
		return "Write an AutoLISP script for the following drawing request:\n\n" + req.Description
	}
	var b strings.Builder
	b.WriteString("The previous script failed to execute. Fix it.\n\n")
	b.WriteString("Original request:\n")
	b.WriteString(req.Description)
	b.WriteString("\n\nPrevious script:\n")
	b.WriteString(req.PreviousScript)
	if req.ErrorContext != "" {
		b.WriteString("\n\nExecution error:\n")
		b.WriteString(req.ErrorContext)
	}
	return b.String()
}

// extractScript strips an optional markdown fence from the model reply.
func extractScript(text string) string {
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "()") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

func cost(model string, tokensIn, tokensOut int) float64 {
	price, ok := modelPricing[model]
	if !ok {
		price = struct{ in, out float64 }{baselinePriceIn, baselinePriceOut}
	}
	return float64(tokensIn)/1000*price.in + float64(tokensOut)/1000*price.out
}
