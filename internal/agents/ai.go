package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/strategy"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// AIClient talks to an OpenAI-compatible chat completion endpoint and turns
// strategy proposals into validated signals.
type AIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewAIClient creates a chat-completion client.
func NewAIClient(baseURL, apiKey, model string) *AIClient {
	return &AIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AdviseSignal asks the model to confirm or adjust a proposed signal.
// Implements strategy.AIAdvisor.
func (c *AIClient) AdviseSignal(ctx context.Context, symbol string, candles []common.Candle, proposed strategy.Signal) (strategy.Signal, error) {
	prompt := buildSignalPrompt(symbol, candles, proposed)

	content, err := c.chat(ctx, prompt)
	if err != nil {
		return strategy.Signal{}, err
	}

	verdict := struct {
		Action     string  `json:"action"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}{}
	if err := json.Unmarshal([]byte(extractJSON(content)), &verdict); err != nil {
		return strategy.Signal{}, fmt.Errorf("parse model verdict: %w", err)
	}

	action := strategy.Action(strings.ToLower(verdict.Action))
	switch action {
	case strategy.ActionBuy, strategy.ActionSell, strategy.ActionClose, strategy.ActionHold:
	default:
		return strategy.Signal{}, fmt.Errorf("model returned unknown action %q", verdict.Action)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return strategy.Signal{}, fmt.Errorf("model confidence %.2f out of range", verdict.Confidence)
	}

	out := proposed
	out.Action = action
	out.Confidence = verdict.Confidence
	out.Reason = verdict.Reason
	return out, nil
}

func (c *AIClient) chat(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildSignalPrompt(symbol string, candles []common.Candle, proposed strategy.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are validating a leveraged futures trade signal for %s.\n", symbol)
	fmt.Fprintf(&b, "Proposed action: %s (confidence %.2f). Rationale: %s\n", proposed.Action, proposed.Confidence, proposed.Reason)

	n := len(candles)
	if n > 20 {
		candles = candles[n-20:]
	}
	b.WriteString("Recent closes (oldest first): ")
	for i, c := range candles {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.4f", c.Close)
	}
	b.WriteString("\nReply with JSON only: {\"action\":\"buy|sell|close|hold\",\"confidence\":0.0,\"reason\":\"...\"}")
	return b.String()
}

// extractJSON pulls the first JSON object out of a model reply that may be
// wrapped in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
