package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"supa-artistry/internal/genai"
	"supa-artistry/internal/logger"
	"supa-artistry/internal/middleware"

	"github.com/gin-gonic/gin"
)

const maxImageBytes = 10 << 20

type Handler struct {
	sim *genai.Simulator
}

func NewHandler(sim *genai.Simulator) *Handler {
	return &Handler{sim: sim}
}

// RegisterRoutes mounts the demos on a group that already runs
// middleware.GinRequireIdentity.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/genai/text", h.text)
	r.POST("/genai/image", h.image)
	r.POST("/genai/multimodal", h.multimodal)
	r.POST("/genai/video", h.video)
}

type promptRequest struct {
	Prompt  string `json:"prompt"`
	APIKey  string `json:"api_key"`
	Backend string `json:"backend"`
}

func (r promptRequest) options() genai.Options {
	return genai.Options{APIKey: r.APIKey, Backend: genai.Backend(r.Backend)}
}

func (h *Handler) text(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sim.GenerateText(c.Request.Context(), req.options(), req.Prompt)
	h.respond(c, "text", res, err)
}

func (h *Handler) video(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.sim.GenerateVideo(c.Request.Context(), req.options(), req.Prompt)
	h.respond(c, "video", res, err)
}

func (h *Handler) image(c *gin.Context) {
	img, err := formImage(c)
	if err != nil {
		h.respond(c, "image", nil, err)
		return
	}

	res, err := h.sim.AnalyzeImage(c.Request.Context(), formOptions(c), img)
	h.respond(c, "image", res, err)
}

func (h *Handler) multimodal(c *gin.Context) {
	img, err := formImage(c)
	if err != nil {
		h.respond(c, "multimodal", nil, err)
		return
	}

	res, err := h.sim.TextAndImage(c.Request.Context(), formOptions(c), c.PostForm("prompt"), img)
	h.respond(c, "multimodal", res, err)
}

func (h *Handler) respond(c *gin.Context, demo string, res *genai.Result, err error) {
	principal, _ := middleware.PrincipalFrom(c)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"session_id": principal.ID,
			"guest":      principal.Guest,
			"result":     res,
		})
	case errors.Is(err, genai.ErrAPIKeyRequired),
		errors.Is(err, genai.ErrPromptRequired),
		errors.Is(err, genai.ErrImageRequired),
		errors.Is(err, genai.ErrNotAnImage),
		errors.Is(err, genai.ErrImageTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the response
		c.Status(http.StatusRequestTimeout)
	default:
		logger.Error("genai demo failed", map[string]any{
			"demo":       demo,
			"session_id": principal.ID,
			"error":      err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to generate content, please try again",
		})
	}
}

func formOptions(c *gin.Context) genai.Options {
	return genai.Options{
		APIKey:  c.PostForm("api_key"),
		Backend: genai.Backend(c.PostForm("backend")),
	}
}

// formImage reads the "image" upload and sniffs its real content type.
// A missing upload is (nil, nil) so the simulator reports it.
func formImage(c *gin.Context) (*genai.Image, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, genai.ErrImageRequired
	}
	if fh.Size > maxImageBytes {
		return nil, genai.ErrImageTooLarge
	}

	contentType, err := sniff(fh)
	if err != nil {
		return nil, err
	}

	return &genai.Image{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
	}, nil
}

func sniff(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n]), nil
}
