package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"parish/internal/config"
	"parish/internal/logging"
	"parish/internal/services"
)

// Workflow node identifiers in the bundled ComfyUI API template.
const (
	comfyNodePrompt = "45"
	comfyNodeLatent = "41"
	comfyNodeSample = "44"
	comfyNodeSave   = "9"
)

const comfyPollInterval = 2 * time.Second

// ComfyUIClient drives a ComfyUI server through its queue API: submit a
// workflow, poll history until the save node reports an image, download it.
type ComfyUIClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewComfyUIClient builds a client from the thumbnail configuration section.
func NewComfyUIClient(cfg *config.Config, logger *slog.Logger) *ComfyUIClient {
	timeout := time.Duration(cfg.Thumbnail.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ComfyUIClient{
		baseURL: strings.TrimRight(cfg.Thumbnail.ComfyUIURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With(logging.String(logging.FieldComponent, "comfyui")),
	}
}

// Available reports whether the server answers its stats endpoint.
func (c *ComfyUIClient) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return fmt.Errorf("build stats request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "", "comfyui", "comfyui server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrExternalTool, "", "comfyui", fmt.Sprintf("system_stats returned %d", resp.StatusCode), nil)
	}
	return nil
}

// GenerateImage submits the text-to-image workflow and returns the rendered
// image bytes.
func (c *ComfyUIClient) GenerateImage(ctx context.Context, prompt string, width, height, steps int) ([]byte, error) {
	workflow, err := buildComfyWorkflow(prompt, width, height, steps)
	if err != nil {
		return nil, err
	}

	promptID, err := c.queuePrompt(ctx, workflow)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("queued comfyui prompt", logging.String("prompt_id", promptID))

	filename, subfolder, err := c.waitForOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}
	return c.downloadImage(ctx, filename, subfolder)
}

func (c *ComfyUIClient) queuePrompt(ctx context.Context, workflow map[string]comfyNode) (string, error) {
	payload := map[string]any{
		"prompt":    workflow,
		"client_id": uuid.NewString(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode workflow: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "comfyui", "queue prompt failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", services.Wrap(services.ErrExternalTool, "", "comfyui",
			fmt.Sprintf("queue prompt returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var decoded struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "", "comfyui", "decode prompt response", err)
	}
	if decoded.PromptID == "" {
		return "", services.Wrap(services.ErrExternalTool, "", "comfyui", "no prompt id returned", nil)
	}
	return decoded.PromptID, nil
}

func (c *ComfyUIClient) waitForOutput(ctx context.Context, promptID string) (string, string, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		if time.Now().After(deadline) {
			return "", "", services.Wrap(services.ErrExternalTool, "", "comfyui", "timeout waiting for image", nil)
		}

		filename, subfolder, done, err := c.pollHistory(ctx, promptID)
		if err != nil {
			return "", "", err
		}
		if done {
			return filename, subfolder, nil
		}

		select {
		case <-time.After(comfyPollInterval):
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
}

func (c *ComfyUIClient) pollHistory(ctx context.Context, promptID string) (string, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return "", "", false, fmt.Errorf("build history request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", false, services.Wrap(services.ErrExternalTool, "", "comfyui", "history request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", false, nil
	}

	var history map[string]struct {
		Outputs map[string]struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
			} `json:"images"`
		} `json:"outputs"`
		Status struct {
			Completed *bool           `json:"completed"`
			Messages  json.RawMessage `json:"messages"`
		} `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return "", "", false, services.Wrap(services.ErrExternalTool, "", "comfyui", "decode history response", err)
	}

	entry, ok := history[promptID]
	if !ok {
		return "", "", false, nil
	}
	if save, ok := entry.Outputs[comfyNodeSave]; ok && len(save.Images) > 0 {
		return save.Images[0].Filename, save.Images[0].Subfolder, true, nil
	}
	if entry.Status.Completed != nil && !*entry.Status.Completed {
		return "", "", false, services.Wrap(services.ErrExternalTool, "", "comfyui",
			fmt.Sprintf("workflow failed: %s", string(entry.Status.Messages)), nil)
	}
	return "", "", false, nil
}

func (c *ComfyUIClient) downloadImage(ctx context.Context, filename, subfolder string) ([]byte, error) {
	query := url.Values{}
	query.Set("filename", filename)
	query.Set("subfolder", subfolder)
	query.Set("type", "output")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build view request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "", "comfyui", "download image failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalTool, "", "comfyui", fmt.Sprintf("view returned %d", resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

type comfyNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// buildComfyWorkflow assembles the z-image-turbo API workflow with the
// caller's prompt, geometry, and step count.
func buildComfyWorkflow(prompt string, width, height, steps int) (map[string]comfyNode, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "comfyui", "empty image prompt", nil)
	}
	seed := time.Now().UnixMilli() % (1 << 32)
	return map[string]comfyNode{
		"38": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{
			"ckpt_name": "z-image-turbo.safetensors",
		}},
		comfyNodePrompt: {ClassType: "CLIPTextEncode", Inputs: map[string]any{
			"text": prompt,
			"clip": []any{"38", 1},
		}},
		comfyNodeLatent: {ClassType: "EmptySD3LatentImage", Inputs: map[string]any{
			"width":      width,
			"height":     height,
			"batch_size": 1,
		}},
		comfyNodeSample: {ClassType: "KSampler", Inputs: map[string]any{
			"model":        []any{"38", 0},
			"positive":     []any{comfyNodePrompt, 0},
			"negative":     []any{comfyNodePrompt, 0},
			"latent_image": []any{comfyNodeLatent, 0},
			"steps":        steps,
			"seed":         seed,
			"cfg":          1.0,
			"sampler_name": "euler",
			"scheduler":    "simple",
			"denoise":      1.0,
		}},
		"8": {ClassType: "VAEDecode", Inputs: map[string]any{
			"samples": []any{comfyNodeSample, 0},
			"vae":     []any{"38", 2},
		}},
		comfyNodeSave: {ClassType: "SaveImage", Inputs: map[string]any{
			"images":          []any{"8", 0},
			"filename_prefix": "thumbnail",
		}},
	}, nil
}
