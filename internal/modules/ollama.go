package modules

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parish/internal/config"
	"parish/internal/logging"
	"parish/internal/services"
)

// OllamaClient talks to a local Ollama server for text generation and, for
// image-capable models, background generation.
type OllamaClient struct {
	baseURL string
	model   string
	unload  bool
	client  *http.Client
	logger  *slog.Logger
}

// NewOllamaClient builds a client from the AI configuration section.
func NewOllamaClient(cfg *config.Config, logger *slog.Logger) *OllamaClient {
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.AI.BaseURL, "/"),
		model:   cfg.AI.Model,
		unload:  cfg.AI.UnloadModelAfter,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(logging.String(logging.FieldComponent, "ollama")),
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Available reports whether the server responds and the configured model is
// installed.
func (c *OllamaClient) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build tags request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "", "ollama", "ollama server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternalTool, "", "ollama", fmt.Sprintf("ollama tags returned %d", resp.StatusCode), nil)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return services.Wrap(services.ErrExternalTool, "", "ollama", "decode tags response", err)
	}
	for _, model := range tags.Models {
		if model.Name == c.model {
			return nil
		}
	}
	return services.Wrap(services.ErrConfiguration, "", "ollama", fmt.Sprintf("model %q not installed", c.model), nil)
}

type generateRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt,omitempty"`
	System    string `json:"system,omitempty"`
	Stream    bool   `json:"stream"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

type generateResponse struct {
	Response string   `json:"response"`
	Image    string   `json:"image"`
	Images   []string `json:"images"`
}

func (c *OllamaClient) generate(ctx context.Context, payload generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "", "ollama", "generate request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, services.Wrap(services.ErrExternalTool, "", "ollama",
			fmt.Sprintf("generate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "", "ollama", "decode generate response", err)
	}
	return &decoded, nil
}

// Generate runs a text completion with an optional system prompt.
func (c *OllamaClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	resp, err := c.generate(ctx, generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Response), nil
}

// GenerateImage runs an image-capable model and returns decoded image bytes.
// Servers report the image in different fields depending on the model, so
// all known shapes are tried.
func (c *OllamaClient) GenerateImage(ctx context.Context, model, prompt string, width, height int) ([]byte, error) {
	fullPrompt := fmt.Sprintf("/set width %d\n/set height %d\n%s", width, height, prompt)
	resp, err := c.generate(ctx, generateRequest{
		Model:  model,
		Prompt: fullPrompt,
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	candidates := []string{resp.Image}
	candidates = append(candidates, resp.Images...)
	candidates = append(candidates, resp.Response)
	for _, encoded := range candidates {
		if encoded == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(data) < 100 {
			continue
		}
		return data, nil
	}
	return nil, services.Wrap(services.ErrExternalTool, "", "ollama", "no image data in generate response", nil)
}

// Unload asks the server to evict the model from memory. Best effort; a
// failure only costs VRAM until the server's own keep-alive expires.
func (c *OllamaClient) Unload(ctx context.Context) {
	if !c.unload {
		return
	}
	_, err := c.generate(ctx, generateRequest{Model: c.model, KeepAlive: "0"})
	if err != nil {
		c.logger.Warn("model unload failed", logging.Error(err))
	}
}
