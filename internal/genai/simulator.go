// Package genai simulates the generative-AI demos. No model is invoked:
// every operation validates its input, waits a fixed delay and returns
// templated text.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAPIKeyRequired = errors.New("please enter your Google AI API key first")
	ErrPromptRequired = errors.New("please enter a prompt")
	ErrImageRequired  = errors.New("please select an image to analyze")
	ErrNotAnImage     = errors.New("please select an image file")
	ErrImageTooLarge  = errors.New("image is too large")
)

// Backend names the API the demo pretends to call.
type Backend string

const (
	BackendGeminiAPI Backend = "gemini-api"
	BackendVertexAI  Backend = "vertex-ai"
)

// Options are the common request settings from the demo form.
type Options struct {
	APIKey  string
	Backend Backend
}

// Image is an uploaded file as seen by the demos.
type Image struct {
	Name        string
	ContentType string
	Size        int64
}

// Result is a simulated model response.
type Result struct {
	Text     string  `json:"text"`
	Backend  Backend `json:"backend"`
	VideoURL string  `json:"video_url,omitempty"`
	Elapsed  int64   `json:"elapsed_ms"`
}

// Delays configures how long each simulated call takes.
type Delays struct {
	Text  time.Duration
	Image time.Duration
	Video time.Duration
}

// DefaultDelays match the demo UI's timings.
var DefaultDelays = Delays{
	Text:  2 * time.Second,
	Image: 3 * time.Second,
	Video: 5 * time.Second,
}

type Simulator struct {
	delays Delays
	now    func() time.Time
}

func NewSimulator(delays Delays) *Simulator {
	return &Simulator{delays: delays, now: time.Now}
}

func (s *Simulator) GenerateText(ctx context.Context, opts Options, prompt string) (*Result, error) {
	if err := checkKey(opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}

	text := fmt.Sprintf("Generated response for: %q\n\n"+
		"This is a simulated response. No model was called; connect a real "+
		"Gemini client to get generated content.", prompt)

	return s.respond(ctx, opts, s.delays.Text, text)
}

func (s *Simulator) AnalyzeImage(ctx context.Context, opts Options, img *Image) (*Result, error) {
	if err := checkKey(opts); err != nil {
		return nil, err
	}
	if err := checkImage(img); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Image Analysis for %q:\n\n"+
		"• Image dimensions: Detected automatically\n"+
		"• Content: This appears to be a %s image\n"+
		"• File size: %.1f KB\n\n"+
		"This is a simulated analysis. No vision model was called.",
		img.Name, imageKind(img.ContentType), float64(img.Size)/1024)

	return s.respond(ctx, opts, s.delays.Image, text)
}

func (s *Simulator) TextAndImage(ctx context.Context, opts Options, prompt string, img *Image) (*Result, error) {
	if err := checkKey(opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}
	if err := checkImage(img); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Multimodal Analysis:\n\nPrompt: %q\nImage: %s\n\n"+
		"This is a simulated response that would combine the visual content of "+
		"the uploaded image with the text prompt. A real multimodal model could:\n"+
		"• Describe what's in the image\n"+
		"• Answer questions about the image\n"+
		"• Generate content based on both the image and text prompt",
		prompt, img.Name)

	return s.respond(ctx, opts, s.delays.Image, text)
}

// GenerateVideo never yields a video; the result explains why.
func (s *Simulator) GenerateVideo(ctx context.Context, opts Options, prompt string) (*Result, error) {
	if err := checkKey(opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}

	text := "Video generation simulated. Real video generation requires Veo API " +
		"access and significant processing time."

	return s.respond(ctx, opts, s.delays.Video, text)
}

func (s *Simulator) respond(ctx context.Context, opts Options, delay time.Duration, text string) (*Result, error) {
	start := s.now()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendGeminiAPI
	}

	return &Result{
		Text:    text,
		Backend: backend,
		Elapsed: s.now().Sub(start).Milliseconds(),
	}, nil
}

func checkKey(opts Options) error {
	if strings.TrimSpace(opts.APIKey) == "" {
		return ErrAPIKeyRequired
	}
	return nil
}

func checkImage(img *Image) error {
	if img == nil {
		return ErrImageRequired
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return ErrNotAnImage
	}
	return nil
}

func imageKind(contentType string) string {
	if strings.Contains(contentType, "jpeg") {
		return "JPEG"
	}
	return "PNG"
}
