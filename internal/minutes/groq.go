package minutes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nvoss/meetingscribe/internal/reliability"
)

const defaultGroqModel = "llama-3.1-70b-versatile"

// GroqGenerator is a minimal client for Groq chat completions, used to write
// minutes from a transcript.
type GroqGenerator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewGroqGenerator(apiKey, baseURL, model string) *GroqGenerator {
	if baseURL == "" {
		baseURL = "https://api.groq.com"
	}
	if model == "" {
		model = defaultGroqModel
	}
	return &GroqGenerator{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GroqGenerator) Name() string { return "groq" }

type chatRequest struct {
	Model       string      `json:"model,omitempty"`
	Messages    interface{} `json:"messages,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *GroqGenerator) Generate(ctx context.Context, req Request) (string, error) {
	prompt := fmt.Sprintf("%s\n\nTranscript of %q:\n\n%s",
		promptFor(req.Style), req.Title, transcriptText(req.Segments))

	body := chatRequest{
		Model:       g.model,
		Messages:    []map[string]string{{"role": "user", "content": prompt}},
		Temperature: 0.3,
		MaxTokens:   4000,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := g.baseURL + "/openai/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("groq chat completion: %w", &reliability.StatusError{Code: resp.StatusCode})
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("empty response from groq")
	}
	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("blank minutes from groq")
	}
	return content, nil
}

func promptFor(style Style) string {
	switch style {
	case StyleActionItems:
		return "Extract the action items from this meeting transcript as a markdown checklist. For each item name the owner if one is mentioned. Return only markdown."
	case StyleBrief:
		return "Summarize this meeting transcript in at most five sentences of markdown. Return only markdown."
	default:
		return "Write structured meeting minutes for this transcript in markdown: a short summary, key discussion points and decisions. Return only markdown."
	}
}
