package conversions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"narrate-backend/internal/documents"
	"narrate-backend/internal/shared/server/middleware"
	"narrate-backend/internal/shared/server/respond"
	"narrate-backend/internal/shared/util"
	"narrate-backend/internal/voice"
)

const defaultMaxUploadBytes = 10 << 20

// Catalogue lists the provider's voices and models.
type Catalogue interface {
	Voices(ctx context.Context) (json.RawMessage, error)
	Models(ctx context.Context) (json.RawMessage, error)
}

// Handler exposes conversion endpoints.
type Handler struct {
	Service        *Service
	Catalogue      Catalogue
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, catalogue Catalogue, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{Service: svc, Catalogue: catalogue, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches conversion and voice routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversions", h.submit)
	rg.POST("/conversions/estimate", h.estimate)
	rg.GET("/conversions/:id", h.status)
	rg.GET("/conversions/:id/audio", h.audio)
	rg.GET("/voices", h.voices)
	rg.GET("/voices/models", h.models)
}

func (h *Handler) submit(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	ct := voice.ParseContentType(c.PostForm("contentType"))
	if _, err := voice.ProfileFor(ct); err != nil {
		respond.Error(c, http.StatusBadRequest, "unsupported_content_type", err.Error(), gin.H{"supported": voice.Supported()})
		return
	}
	up.ContentType = ct
	up.Title = strings.TrimSpace(c.PostForm("title"))
	c.Set(middleware.ContentTypeKey, string(ct))

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Service.Submit(ctx, middleware.UserIDFromContext(c), up)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(middleware.JobIDKey, job.ID)
	c.Set(middleware.StageKey, string(job.Stage))
	c.Header("Location", "/api/v1/conversions/"+job.ID)
	respond.Accepted(c, job)
}

func (h *Handler) estimate(c *gin.Context) {
	up, ok := h.readUpload(c)
	if !ok {
		return
	}
	up.Title = strings.TrimSpace(c.PostForm("title"))
	est, err := h.Service.Estimate(c.Request.Context(), up)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, est)
}

func (h *Handler) status(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))
	c.Set(middleware.JobIDKey, jobID)
	job, err := h.Service.Status(c.Request.Context(), middleware.UserIDFromContext(c), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Set(middleware.StageKey, string(job.Stage))
	c.Set(middleware.ContentTypeKey, job.ContentType)
	respond.Fresh(c, job)
}

func (h *Handler) audio(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("id"))
	c.Set(middleware.JobIDKey, jobID)
	rc, job, err := h.Service.OpenAudio(c.Request.Context(), middleware.UserIDFromContext(c), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer rc.Close()

	name, nameErr := util.SanitizeFileName(job.Title + ".mp3")
	if nameErr != nil {
		name = job.ID + ".mp3"
	}
	c.Header("Content-Type", "audio/mpeg")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

func (h *Handler) voices(c *gin.Context) {
	h.proxyCatalogue(c, func(ctx context.Context) (json.RawMessage, error) { return h.Catalogue.Voices(ctx) })
}

func (h *Handler) models(c *gin.Context) {
	h.proxyCatalogue(c, func(ctx context.Context) (json.RawMessage, error) { return h.Catalogue.Models(ctx) })
}

func (h *Handler) proxyCatalogue(c *gin.Context, fetch func(context.Context) (json.RawMessage, error)) {
	if h.Catalogue == nil {
		respond.Error(c, http.StatusServiceUnavailable, "voice_unavailable", "voice provider not configured", nil)
		return
	}
	raw, err := fetch(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *Handler) readUpload(c *gin.Context) (Upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", nil)
			return Upload{}, false
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return Upload{}, false
	}
	if fh.Size > h.MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", nil)
		return Upload{}, false
	}
	f, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file could not be read", nil)
		return Upload{}, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file could not be read", nil)
		return Upload{}, false
	}
	return Upload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "conversion not found", nil)
	case errors.Is(err, ErrAudioNotReady):
		respond.Error(c, http.StatusConflict, "audio_not_ready", "conversion audio not ready", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, voice.ErrUnsupportedContentType):
		respond.Error(c, http.StatusBadRequest, "unsupported_content_type", err.Error(), gin.H{"supported": voice.Supported()})
	case errors.Is(err, documents.ErrUnsupportedFormat):
		respond.Error(c, http.StatusUnprocessableEntity, "unsupported_format", err.Error(), nil)
	case errors.Is(err, voice.ErrGenerationFailed):
		respond.Error(c, http.StatusBadGateway, "voice_provider_error", "voice provider request failed", nil)
	case errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "conversion request failed", nil)
	}
}
