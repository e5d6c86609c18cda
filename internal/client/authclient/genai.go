package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"supa-artistry/internal/genai"
)

// SessionIDHeader tags demo requests with the caller's active identifier.
const SessionIDHeader = "X-Session-ID"

// DemoOptions are the settings every demo call carries.
type DemoOptions struct {
	APIKey  string
	Backend string
}

// DemoResult is a demo response: the result and whom it was attributed to.
type DemoResult struct {
	SessionID string        `json:"session_id"`
	Guest     bool          `json:"guest"`
	Result    *genai.Result `json:"result"`
}

// ImageUpload is a file to send to the image demos.
type ImageUpload struct {
	Name string
	Data io.Reader
}

type promptRequest struct {
	Prompt  string `json:"prompt"`
	APIKey  string `json:"api_key"`
	Backend string `json:"backend,omitempty"`
}

// GenerateText runs the text demo as sessionID.
func (c *Client) GenerateText(ctx context.Context, sessionID string, opts DemoOptions, prompt string) (*DemoResult, error) {
	return c.promptDemo(ctx, "/api/genai/text", sessionID, opts, prompt)
}

// GenerateVideo runs the video demo as sessionID.
func (c *Client) GenerateVideo(ctx context.Context, sessionID string, opts DemoOptions, prompt string) (*DemoResult, error) {
	return c.promptDemo(ctx, "/api/genai/video", sessionID, opts, prompt)
}

// AnalyzeImage runs the image demo as sessionID.
func (c *Client) AnalyzeImage(ctx context.Context, sessionID string, opts DemoOptions, img ImageUpload) (*DemoResult, error) {
	return c.uploadDemo(ctx, "/api/genai/image", sessionID, opts, "", img)
}

// TextAndImage runs the multimodal demo as sessionID.
func (c *Client) TextAndImage(ctx context.Context, sessionID string, opts DemoOptions, prompt string, img ImageUpload) (*DemoResult, error) {
	return c.uploadDemo(ctx, "/api/genai/multimodal", sessionID, opts, prompt, img)
}

func (c *Client) promptDemo(ctx context.Context, path, sessionID string, opts DemoOptions, prompt string) (*DemoResult, error) {
	header := http.Header{}
	header.Set(SessionIDHeader, sessionID)

	var out DemoResult
	err := c.doJSON(ctx, http.MethodPost, path, promptRequest{
		Prompt:  prompt,
		APIKey:  opts.APIKey,
		Backend: opts.Backend,
	}, &out, header)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) uploadDemo(ctx context.Context, path, sessionID string, opts DemoOptions, prompt string, img ImageUpload) (*DemoResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{
		"api_key": opts.APIKey,
		"backend": opts.Backend,
		"prompt":  prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	if img.Data != nil {
		part, err := w.CreateFormFile("image", img.Name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, img.Data); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(SessionIDHeader, sessionID)

	var out DemoResult
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
