// internal/nlp/gemini.go
package nlp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/opspilot/opspilot-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const systemPrompt = `You are a DevOps command parser. Parse the operator's request into JSON with:
- "category": one of [troubleshooting, cicd, cloud_provisioning, cost_usage, security_compliance, monitoring_alerts]
- "action": the snake_case operation name (e.g. get_logs, restart_service, trigger_pipeline)
- "parameters": string key-value pairs; keep pronoun references ("it", "that") verbatim as values
- "confidence": your confidence in this parse, 0.0 to 1.0
Respond with the JSON object only.`

// GeminiDrafter implements Drafter against the Gemini generateContent API.
type GeminiDrafter struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	cfg        config.LLMConfig
}

// -- Gemini API request/response structures (internal to this file) --

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// NewGeminiDrafter initializes the client.
func NewGeminiDrafter(cfg config.LLMConfig, logger *zap.Logger) (*GeminiDrafter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	return &GeminiDrafter{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("gemini_drafter"),
	}, nil
}

// Draft sends the raw text to the Gemini API and parses the JSON reply into
// a Draft, retrying transient failures with exponential backoff.
func (g *GeminiDrafter) Draft(ctx context.Context, rawText string) (*Draft, error) {
	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: rawText}}, Role: "user"},
		},
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.cfg.Temperature,
			ResponseMimeType: "application/json",
			MaxOutputTokens:  g.cfg.MaxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 90 * time.Second
	b.MaxInterval = 15 * time.Second

	var responseText string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("gemini request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read gemini response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			// Throttling and server errors are transient.
			return fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, raw)
		default:
			return backoff.Permanent(fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, raw))
		}

		var parsed geminiResponsePayload
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("unexpected gemini response format: %w", err))
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini response contained no candidates"))
		}
		responseText = parsed.Candidates[0].Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	return parseDraftJSON(responseText)
}

// parseDraftJSON extracts a Draft from the model's reply, tolerating code
// fences and surrounding prose.
func parseDraftJSON(text string) (*Draft, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}

	var draft Draft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return nil, fmt.Errorf("drafter returned malformed JSON: %w", err)
	}
	if draft.Parameters == nil {
		draft.Parameters = map[string]string{}
	}
	if draft.Confidence < 0 || draft.Confidence > 1 {
		return nil, fmt.Errorf("drafter returned confidence outside [0,1]: %f", draft.Confidence)
	}
	return &draft, nil
}
