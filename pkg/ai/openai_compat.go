package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"advisorai/pkg/domain"
)

// OpenAICompatClient streams replies from any OpenAI-compatible
// /v1/chat/completions endpoint. Works with vLLM, LiteLLM, LocalAI,
// Deepseek, OpenRouter, self-hosted models, etc. These backends carry
// no grounding metadata, so chunks are text-only.
type OpenAICompatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatClient builds an OpenAI-compatible Generator.
// baseURL should include the /v1 prefix, e.g. "http://localhost:8000/v1".
// apiKey can be empty for local models that do not require authentication.
func NewOpenAICompatClient(baseURL, apiKey, model string) (*OpenAICompatClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("openai-compat base url required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("openai-compat model required")
	}
	return &OpenAICompatClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

// StreamReply implements Generator using the chat completions API with
// stream enabled.
func (c *OpenAICompatClient) StreamReply(ctx context.Context, systemPrompt string, turns []Turn) (Stream, error) {
	messages := make([]oaiMessage, 0, len(turns)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: systemPrompt})
	}
	for _, turn := range turns {
		role := "user"
		if turn.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, oaiMessage{Role: role, Content: turn.Text})
	}

	reqBody := oaiChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai-compat request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("openai-compat api error: %s", resp.Status)
	}
	return &oaiStream{body: resp.Body, sse: newSSEReader(resp.Body)}, nil
}

type oaiStream struct {
	body io.ReadCloser
	sse  *sseReader
}

func (s *oaiStream) Recv() (domain.StreamChunk, error) {
	for {
		payload, err := s.sse.next()
		if err != nil {
			return domain.StreamChunk{}, err
		}
		if payload == "[DONE]" {
			return domain.StreamChunk{}, io.EOF
		}
		var resp oaiChunkResponse
		if err := json.Unmarshal([]byte(payload), &resp); err != nil {
			return domain.StreamChunk{}, fmt.Errorf("openai-compat decode chunk: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return domain.StreamChunk{Text: resp.Choices[0].Delta.Content}, nil
	}
}

func (s *oaiStream) Close() error {
	return s.body.Close()
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

type oaiChunkResponse struct {
	Choices []struct {
		Delta oaiMessage `json:"delta"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
