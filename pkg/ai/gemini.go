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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Google AI Studio (Gemini) API with server-sent
// event streaming and search grounding enabled.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a client for the given API key and model.
func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	model = normalizeModel(model)
	if model == "" {
		return nil, fmt.Errorf("gemini model required")
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGeminiBaseURL,
		// No overall timeout: a reply streams for as long as the model
		// keeps generating. Cancellation comes from the request context.
		httpClient: &http.Client{},
	}, nil
}

// StreamReply opens a streaming generation request for the given history.
func (c *GeminiClient) StreamReply(ctx context.Context, systemPrompt string, turns []Turn) (Stream, error) {
	contents := make([]content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, content{
			Role:  turn.Role,
			Parts: []part{{Text: turn.Text}},
		})
	}
	reqBody := generateRequest{
		Contents: contents,
		Tools:    []tool{{GoogleSearch: &struct{}{}}},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &content{
			Parts: []part{{Text: systemPrompt}},
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("gemini api error: %s", resp.Status)
	}
	return &geminiStream{body: resp.Body, sse: newSSEReader(resp.Body)}, nil
}

type geminiStream struct {
	body io.ReadCloser
	sse  *sseReader
}

func (s *geminiStream) Recv() (domain.StreamChunk, error) {
	payload, err := s.sse.next()
	if err != nil {
		return domain.StreamChunk{}, err
	}
	var resp generateResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return domain.StreamChunk{}, fmt.Errorf("gemini decode chunk: %w", err)
	}
	var chunk domain.StreamChunk
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		var text strings.Builder
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		chunk.Text = text.String()
		if cand.GroundingMetadata != nil {
			for _, gc := range cand.GroundingMetadata.GroundingChunks {
				if gc.Web == nil || gc.Web.URI == "" {
					continue
				}
				title := gc.Web.Title
				if title == "" {
					title = "Source"
				}
				chunk.Sources = append(chunk.Sources, domain.GroundingSource{Title: title, URI: gc.Web.URI})
			}
		}
	}
	return chunk, nil
}

func (s *geminiStream) Close() error {
	return s.body.Close()
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Tools             []tool    `json:"tools,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content           content            `json:"content"`
		GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
	} `json:"candidates"`
}

type groundingMetadata struct {
	GroundingChunks []struct {
		Web *struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"web"`
	} `json:"groundingChunks"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
