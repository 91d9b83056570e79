package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/secureshare/secureshare/archive"
	"github.com/secureshare/secureshare/crypto"
	"github.com/secureshare/secureshare/database"
	"github.com/secureshare/secureshare/logging"
	"github.com/secureshare/secureshare/models"
	"github.com/secureshare/secureshare/share"
	"github.com/secureshare/secureshare/storage"
	"github.com/secureshare/secureshare/utils"
)

// Handler carries the dependencies of the HTTP layer: the share service,
// the event log and the upload size cap.
type Handler struct {
	svc          *share.Service
	events       *database.DB
	maxShareSize int64
}

// NewHandler wires a handler around its dependencies.
func NewHandler(svc *share.Service, events *database.DB, maxShareSize int64) *Handler {
	return &Handler{
		svc:          svc,
		events:       events,
		maxShareSize: maxShareSize,
	}
}

// RegisterRoutes attaches every endpoint to the echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)
	e.POST("/api/shares", h.CreateShare)
	e.GET("/api/shares/:code", h.GetShare)
	e.GET("/api/shares/:code/files/:name", h.DownloadFile)
	e.POST("/api/shares/:code/archive", h.DownloadArchive)
	e.GET("/api/shares/:code/qr", h.ShareQR)
}

// Health reports liveness and the number of records currently held.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"shares": h.svc.Count(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// shareError converts service and store errors into HTTP responses. Caller
// mistakes answer with 4xx; anything pointing at the store or the payloads
// themselves is logged and answered with a 5xx that does not leak detail.
func shareError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, utils.ErrInvalidCode):
		return echo.NewHTTPError(http.StatusBadRequest, "Share code must be exactly 6 digits")
	case errors.Is(err, share.ErrNoFiles):
		return echo.NewHTTPError(http.StatusBadRequest, "At least one file is required")
	case errors.Is(err, share.ErrEmptyFileName):
		return echo.NewHTTPError(http.StatusBadRequest, "Every file needs a name")
	case errors.Is(err, share.ErrEmptySelection):
		return echo.NewHTTPError(http.StatusBadRequest, "No files selected")
	case errors.Is(err, storage.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Share not found")
	case errors.Is(err, share.ErrFileNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "File not found in share")
	case errors.Is(err, storage.ErrExpired):
		return echo.NewHTTPError(http.StatusGone, "Share code has expired")
	case errors.Is(err, storage.ErrDuplicateCode):
		return echo.NewHTTPError(http.StatusConflict, "Share code already in use")
	case errors.Is(err, archive.ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, "Share holds multiple files with the same name")
	case errors.Is(err, share.ErrCodeSpaceExhausted):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "No share codes available, try again later")
	case errors.Is(err, crypto.ErrAuthentication):
		logging.ErrorLogger.Printf("Decryption failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to decrypt file")
	default:
		logging.ErrorLogger.Printf("Share operation failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process request")
	}
}

// retrieve looks up a share for a read endpoint. A code found expired is
// audited before the error reaches the client; the sweep inside Retrieve
// makes later requests for it answer NotFound, so each share logs at most
// one expired event.
func (h *Handler) retrieve(code string) (*models.Share, error) {
	rec, err := h.svc.Retrieve(code)
	if errors.Is(err, storage.ErrExpired) {
		h.recordEvent(code, "expired", "")
	}
	return rec, err
}

// recordEvent writes an audit entry; a failing or absent event log never
// fails the request it describes.
func (h *Handler) recordEvent(code, action, detail string) {
	if h.events == nil {
		return
	}
	if err := h.events.LogShareEvent(code, action, detail); err != nil {
		logging.ErrorLogger.Printf("Failed to record share event %s/%s: %v", code, action, err)
	}
}

// formatBytes converts bytes to human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
