package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eyecheck-web/internal/form"
	"eyecheck-web/internal/predict"
	"eyecheck-web/internal/session"
	"eyecheck-web/internal/transport/http/middleware"
	"eyecheck-web/internal/transport/http/response"
)

var (
	errMissingFile  = errors.New("missing image file (form field 'file')")
	errFileTooLarge = errors.New("image too large")
)

// FormHandler serves the submission form as an HTML page and as JSON.
type FormHandler struct {
	sessions *session.Manager
	maxBytes int64
	logger   *slog.Logger
}

type pageData struct {
	View   form.View
	Notice string
	Year   int
}

func NewFormHandler(sessions *session.Manager, maxBytes int64, logger *slog.Logger) *FormHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormHandler{
		sessions: sessions,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (h *FormHandler) Page(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.renderPage(c, http.StatusOK, ctrl.View(), "")
}

// Select takes the chosen file and waits for its preview before sending the
// browser back to the page. A change event without a file leaves the form as
// it was.
func (h *FormHandler) Select(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	file, err := h.readFile(c)
	switch {
	case errors.Is(err, errMissingFile):
		c.Redirect(http.StatusSeeOther, "/")
		return
	case errors.Is(err, errFileTooLarge):
		h.renderPage(c, http.StatusRequestEntityTooLarge, ctrl.View(), h.tooLargeMessage())
		return
	case err != nil:
		h.renderPage(c, http.StatusBadRequest, ctrl.View(), "Could not read the uploaded file.")
		return
	}

	waitFor(c.Request.Context(), ctrl.Select(file))
	c.Redirect(http.StatusSeeOther, "/")
}

// Analyze submits the selected file and waits for the outcome. If the
// browser gives up first the request keeps running and the page picks the
// outcome up on its next load.
func (h *FormHandler) Analyze(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	done, err := ctrl.Submit()
	if err == nil {
		waitFor(c.Request.Context(), done)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *FormHandler) State(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.OK(c, ctrl.View())
}

func (h *FormHandler) APISelect(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	file, err := h.readFile(c)
	if err != nil {
		switch {
		case errors.Is(err, errMissingFile):
			response.Error(c, http.StatusBadRequest, response.CodeMissingFile, err.Error())
		case errors.Is(err, errFileTooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, h.tooLargeMessage())
		default:
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart payload")
		}
		return
	}

	done := ctrl.Select(file)
	if wantWait(c) {
		waitFor(c.Request.Context(), done)
	}
	response.OK(c, ctrl.View())
}

func (h *FormHandler) APISubmit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	done, err := ctrl.Submit()
	if err != nil {
		var validationErr *form.ValidationError
		if errors.As(err, &validationErr) {
			response.ErrorWithData(c, http.StatusBadRequest, response.CodeNoFileSelected, validationErr.Message, ctrl.View())
			return
		}
		response.Error(c, http.StatusServiceUnavailable, response.CodeInternalServer, "session closed")
		return
	}

	if wantWait(c) {
		waitFor(c.Request.Context(), done)
	}
	response.OK(c, ctrl.View())
}

func (h *FormHandler) controller(c *gin.Context) (*form.Controller, bool) {
	id, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "missing session")
		return nil, false
	}
	return h.sessions.Controller(c.Request.Context(), id), true
}

func (h *FormHandler) readFile(c *gin.Context) (form.File, error) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	header, err := c.FormFile(predict.FieldName)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return form.File{}, errFileTooLarge
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return form.File{}, errMissingFile
		default:
			return form.File{}, fmt.Errorf("parse upload failed: %w", err)
		}
	}

	f, err := header.Open()
	if err != nil {
		return form.File{}, fmt.Errorf("open upload failed: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return form.File{}, fmt.Errorf("read upload failed: %w", err)
	}

	h.logger.Debug("file selected", "file", header.Filename, "bytes", len(data))
	return form.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *FormHandler) renderPage(c *gin.Context, status int, view form.View, notice string) {
	c.HTML(status, "index.tmpl", pageData{
		View:   view,
		Notice: notice,
		Year:   time.Now().Year(),
	})
}

func (h *FormHandler) tooLargeMessage() string {
	return fmt.Sprintf("Image too large (max %d MB).", h.maxBytes>>20)
}

func wantWait(c *gin.Context) bool {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	return wait
}

func waitFor(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}
