package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/reply-triage/internal/core"
	"github.com/mikey/reply-triage/internal/utils"
	"go.uber.org/zap"
)

// BedrockClient is an implementation of the IntentClassifier interface using Amazon Bedrock
type BedrockClient struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	promptFormat  string
	textProcessor *utils.TextProcessor
}

// IntentResponse represents the structured response from the LLM
type IntentResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
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

// Infer classifies a reply given its thread context window
func (c *BedrockClient) Infer(ctx context.Context, req *core.InferenceRequest) (*core.InferenceResult, error) {
	// Process the body (truncate and sanitize)
	processedBody := c.textProcessor.ProcessText(req.Body, c.maxBodySize)

	prompt := fmt.Sprintf(c.promptFormat,
		formatLabels(req.Labels),
		formatContext(req.Context),
		req.Sender,
		req.Subject,
		processedBody)

	// Create the request based on the model
	var payload []byte
	var err error

	if c.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	} else if c.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, &core.TransientError{Op: "bedrock invoke model", Err: err}
	}

	responseText, err := c.extractResponseText(resp.Body)
	if err != nil {
		return nil, &core.TransientError{Op: "bedrock response decode", Err: err}
	}

	intentResponse, err := parseIntentResponse(responseText)
	if err != nil {
		return nil, &core.TransientError{Op: "bedrock response parse", Err: err}
	}

	return &core.InferenceResult{
		Label:      core.Label(intentResponse.Label),
		Confidence: intentResponse.Confidence,
		Reasoning:  intentResponse.Reasoning,
		Model:      c.modelID,
	}, nil
}

// Healthy reports whether the Bedrock capability is usable. Credentials and
// region are validated when the AWS configuration is loaded, so there is no
// cheap probe to make here.
func (c *BedrockClient) Healthy(ctx context.Context) error {
	return ctx.Err()
}

// extractResponseText parses the model-specific response envelope
func (c *BedrockClient) extractResponseText(body []byte) (string, error) {
	if c.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}

	if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	// Try a generic approach
	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}

	switch {
	case genericResp.Output != "":
		return genericResp.Output, nil
	case genericResp.Text != "":
		return genericResp.Text, nil
	case genericResp.Response != "":
		return genericResp.Response, nil
	default:
		return string(body), nil
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
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
