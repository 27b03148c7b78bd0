package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxEmbedInputChars caps each embedding input before submission.
const maxEmbedInputChars = 20000

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL, apiKey, model, embedModel string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		embedModel: embedModel,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// ParseIntent runs one structured-parsing call. The function schema pins the
// closed vocabularies; the alias vocabulary is injected into the system
// prompt so the parser returns organization names it has actually seen.
func (c *Client) ParseIntent(ctx context.Context, req ParseRequest) (*ParsedIntent, error) {
	systemPrompt := fmt.Sprintf(
		"You are a query parser for a customer sentiment analysis system "+
			"covering UK building societies.\n"+
			"Parse the user's question into structured intent for querying review data.\n\n"+
			"Known organization names and aliases: %s\n\n"+
			"Use only the enum values defined in the parse_query schema.",
		strings.Join(req.AliasVocabulary, ", "),
	)

	userMessage := "Parse this question: " + req.Question
	if req.PriorIntentJSON != "" {
		userMessage += "\n\nPrevious context: " + req.PriorIntentJSON
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: toolFunction{
				Name:        "parse_query",
				Description: "Parse a question about tracked organizations into structured intent",
				Parameters:  json.RawMessage(parseQuerySchema),
			},
		}},
		ToolChoice:  forcedTool("parse_query"),
		Temperature: 0.3,
	}

	var response chatResponse
	if err := c.makeRequest(ctx, "POST", "/chat/completions", payload, &response); err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 || len(response.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("parser returned no tool call")
	}

	var parsed ParsedIntent
	arguments := response.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parsed intent: %w", err)
	}

	return &parsed, nil
}

// EmbedTexts returns one fixed-length vector per input string. Inputs are
// truncated to maxEmbedInputChars before submission.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	input := make([]string, len(texts))
	for i, text := range texts {
		if len(text) > maxEmbedInputChars {
			text = text[:maxEmbedInputChars]
		}
		input[i] = text
	}

	payload := embeddingRequest{
		Model: c.embedModel,
		Input: input,
	}

	var response embeddingResponse
	if err := c.makeRequest(ctx, "POST", "/embeddings", payload, &response); err != nil {
		return nil, err
	}

	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(response.Data))
	}

	vectors := make([][]float32, len(response.Data))
	for i, d := range response.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// ComposeAnswer asks the composition collaborator for answer text from the
// fully assembled turn context.
func (c *Client) ComposeAnswer(ctx context.Context, req ComposeRequest) (string, error) {
	contextJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal compose context: %w", err)
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You are an analyst answering questions about customer sentiment " +
					"for UK building societies. Answer strictly from the metrics, evidence " +
					"snippets and coverage information provided. Never invent numbers.",
			},
			{Role: "user", Content: string(contextJSON)},
		},
		Temperature: 0.4,
	}

	var response chatResponse
	if err := c.makeRequest(ctx, "POST", "/chat/completions", payload, &response); err != nil {
		return "", err
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("composer returned empty response")
	}

	return response.Choices[0].Message.Content, nil
}

func forcedTool(name string) *toolChoice {
	tc := &toolChoice{Type: "function"}
	tc.Function.Name = name
	return tc
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, payload interface{}, result interface{}) error {
	url := c.baseURL + endpoint

	var body io.Reader
	var contentLength int

	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
		contentLength = len(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"url":      url,
		"has_body": payload != nil,
		"size":     contentLength,
	}).Debug("Making inference API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code":   resp.StatusCode,
		"method":        method,
		"url":           url,
		"response_size": len(responseBody),
	}).Debug("Inference API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	if result != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
