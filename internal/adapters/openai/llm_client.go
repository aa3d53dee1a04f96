package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey/reply-triage/internal/core"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is an implementation of the IntentClassifier interface using OpenAI
type OpenAIClient struct {
	client       *openai.Client
	modelName    string
	maxTokens    int
	temperature  float32
	topP         float32
	maxBodySize  int
	logger       *zap.Logger
	promptFormat string
}

// IntentResponse represents the structured response from the LLM
type IntentResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
) *OpenAIClient {
	return &OpenAIClient{
		client:      client,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		maxBodySize: maxBodySize,
		logger:      logger,
		promptFormat: `You are a sales reply triage system. Classify the intent of the reply below.
The allowed labels are: %s.
Respond with a JSON object containing:
- label: string (exactly one of the allowed labels)
- confidence: number between 0 and 1 (how confident you are in the label)
- reasoning: string (brief explanation of your classification)

Earlier replies in this thread, most recent first:
%s

Reply:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}
}

// truncateBody truncates the reply body if it exceeds the maximum size
func (c *OpenAIClient) truncateBody(body string) string {
	if c.maxBodySize <= 0 || len(body) <= c.maxBodySize {
		return body
	}

	truncated := body[:c.maxBodySize]
	c.logger.Debug("Reply body truncated",
		zap.Int("original_size", len(body)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", c.maxBodySize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// Infer classifies a reply given its thread context window
func (c *OpenAIClient) Infer(ctx context.Context, req *core.InferenceRequest) (*core.InferenceResult, error) {
	prompt := fmt.Sprintf(c.promptFormat,
		formatLabels(req.Labels),
		formatContext(req.Context),
		req.Sender,
		req.Subject,
		c.truncateBody(req.Body))

	chatReq := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a sales reply triage system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	responseFormat := openai.ChatCompletionResponseFormat{
		Type: "json",
	}
	chatReq.ResponseFormat = &responseFormat

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, &core.TransientError{Op: "openai chat completion", Err: err}
	}

	if len(resp.Choices) == 0 {
		return nil, &core.TransientError{Op: "openai chat completion", Err: fmt.Errorf("empty response")}
	}

	responseText := resp.Choices[0].Message.Content

	intentResponse, err := parseIntentResponse(responseText)
	if err != nil {
		return nil, &core.TransientError{Op: "openai response parse", Err: err}
	}

	return &core.InferenceResult{
		Label:      core.Label(intentResponse.Label),
		Confidence: intentResponse.Confidence,
		Reasoning:  intentResponse.Reasoning,
		Model:      c.modelName,
	}, nil
}

// Healthy reports whether the OpenAI API is reachable
func (c *OpenAIClient) Healthy(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return &core.TransientError{Op: "openai list models", Err: err}
	}
	return nil
}

// formatLabels renders the label set for the prompt
func formatLabels(labels []core.Label) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%q", string(l)))
	}
	return strings.Join(parts, ", ")
}

// formatContext renders the thread context window for the prompt
func formatContext(entries []core.ContextEntry) string {
	if len(entries) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. From: %s | Label: %s | Body: %s\n", i+1, e.Sender, e.Label, e.Body)
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseIntentResponse parses the LLM's JSON response, extracting the JSON
// object from surrounding text if necessary
func parseIntentResponse(responseText string) (*IntentResponse, error) {
	var intentResponse IntentResponse
	if err := json.Unmarshal([]byte(responseText), &intentResponse); err != nil {
		jsonStart := strings.Index(responseText, "{")
		jsonEnd := strings.LastIndex(responseText, "}")

		if jsonStart >= 0 && jsonEnd > jsonStart {
			jsonStr := responseText[jsonStart : jsonEnd+1]
			if err := json.Unmarshal([]byte(jsonStr), &intentResponse); err != nil {
				return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
	}
	return &intentResponse, nil
}
