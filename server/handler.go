package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/AndreRenaud/pidisplay/display"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	identification = "PiDisplay Display API"
	updated        = "Display updated"
	invalidImage   = "Invalid image data"
)

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type Handler struct {
	display Display
}

func NewHandler(d Display) *Handler {
	return &Handler{display: d}
}

func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/", h.Root)
	engine.GET("/display", h.Info)
	engine.POST("/display/update", h.Update)
	engine.POST("/display/clear", h.Clear)
}

// Root GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, MessageResponse{Message: identification})
}

// Info GET /display
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.display.Info())
}

// Update POST /display/update
func (h *Handler) Update(c *gin.Context) {
	logger := zerolog.Ctx(c.Request.Context())

	data, err := readUpload(c, "image")
	if err != nil {
		logger.Error().Err(err).Msg("error reading uploaded image")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: invalidImage})
		return
	}

	opts := display.RenderOptions{Partial: formBool(c, "partial")}
	if err := h.display.Render(c.Request.Context(), data, opts); err != nil {
		if errors.Is(err, display.ErrInvalidInput) {
			logger.Error().Err(err).Int("bytes", len(data)).Msg("uploaded image could not be decoded")
			c.JSON(http.StatusBadRequest, ErrorResponse{Detail: invalidImage})
			return
		}
		h.internal(c, err, "display update failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: updated})
}

// Clear POST /display/clear
func (h *Handler) Clear(c *gin.Context) {
	if err := h.display.Clear(c.Request.Context()); err != nil {
		h.internal(c, err, "display clear failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: updated})
}

func (h *Handler) internal(c *gin.Context, err error, msg string) {
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: http.StatusText(http.StatusInternalServerError)})
}

func readUpload(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formBool reads a boolean from the form or the query string. Missing or
// malformed values are false.
func formBool(c *gin.Context, name string) bool {
	v, ok := c.GetPostForm(name)
	if !ok {
		v = c.Query(name)
	}
	b, _ := strconv.ParseBool(v)
	return b
}
