package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"glassbooks/internal/core"
)

const defaultGeminiModel = "gemini-2.5-flash"

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Generative Language REST API to read receipts.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// GeminiConfig holds recognition client configuration.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
}

func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}

	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
	Temperature      float64        `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// resultSchema constrains the model to the adapter's input contract. The
// category enum comes from the live taxonomy so the two never drift.
func resultSchema() map[string]any {
	categories := core.Categories()
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}

	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"merchant": map[string]any{"type": "STRING", "description": "Name of the merchant or store"},
			"date":     map[string]any{"type": "STRING", "description": "Date of transaction in YYYY-MM-DD format. If not found, use today."},
			"total":    map[string]any{"type": "NUMBER", "description": "Total amount of the bill"},
			"category": map[string]any{
				"type": "STRING",
				"enum": names,
			},
			"tags": map[string]any{
				"type":        "ARRAY",
				"items":       map[string]any{"type": "STRING"},
				"description": "1-3 relevant hashtags without the # symbol, based on the items.",
			},
			"items": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"name":     map[string]any{"type": "STRING"},
						"price":    map[string]any{"type": "NUMBER"},
						"quantity": map[string]any{"type": "NUMBER"},
					},
				},
			},
		},
		"required": []string{"merchant", "total", "category"},
	}
}

const receiptPrompt = `Analyze this receipt. Extract merchant, date, total.
Categorize it precisely into one of the provided categories.
Also generate useful hashtags (e.g., 'Cloud', 'ArtSupplies', 'Coffee') based on the content.`

// AnalyzeReceipt sends the image to the model and decodes the structured
// result. Transient API failures are retried; all failures come back wrapped
// as ErrRecognition.
func (c *GeminiClient) AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (Result, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
				{Text: receiptPrompt},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   resultSchema(),
			Temperature:      0.1,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal request: %v", ErrRecognition, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	var result Result
	err = retry.Do(
		func() error {
			res, derr := c.generate(ctx, url, jsonBody)
			if derr != nil {
				return derr
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableAPIError),
	)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	return result, nil
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("Gemini API error (status %d): %s", e.status, e.body)
}

func isRetryableAPIError(err error) bool {
	if e, ok := err.(*apiError); ok {
		return e.status == http.StatusTooManyRequests || e.status >= 500
	}
	return false
}

func (c *GeminiClient) generate(ctx context.Context, url string, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &apiError{status: resp.StatusCode, body: string(respBody)}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("no candidates returned")
	}

	var result Result
	text := decoded.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return Result{}, fmt.Errorf("parse result payload: %w", err)
	}
	return result, nil
}
