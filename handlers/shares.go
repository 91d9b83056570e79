package handlers

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/labstack/echo/v4"

	"github.com/secureshare/secureshare/logging"
	"github.com/secureshare/secureshare/share"
)

// qrImageSize is the pixel width and height of served QR codes.
const qrImageSize = 200

// CreateShare handles the upload form: every part named "files" becomes one
// file in the share. The optional "encrypt" field (default true) controls
// whether payloads are sealed at rest.
func (h *Handler) CreateShare(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid upload form: "+err.Error())
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "At least one file is required")
	}

	encrypt := true
	if v := c.FormValue("encrypt"); v != "" {
		encrypt, err = strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid encrypt flag")
		}
	}

	var total int64
	files := make([]share.FileUpload, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		total += fh.Size
		if h.maxShareSize > 0 && total > h.maxShareSize {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Share exceeds the %s upload limit", formatBytes(h.maxShareSize)))
		}

		src, err := fh.Open()
		if err != nil {
			logging.ErrorLogger.Printf("Failed to open uploaded file %q: %v", fh.Filename, err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read upload")
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			logging.ErrorLogger.Printf("Failed to read uploaded file %q: %v", fh.Filename, err)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read upload")
		}

		files = append(files, share.FileUpload{Name: fh.Filename, Data: data})
	}

	res, err := h.svc.CreateShare(files, encrypt)
	if err != nil {
		return shareError(err)
	}

	h.recordEvent(res.Code, "created", fmt.Sprintf("%d files, %s", len(files), formatBytes(total)))
	logging.InfoLogger.Printf("Share created: %s (%d files, %s)", res.Code, len(files), formatBytes(total))

	fileList := make([]map[string]interface{}, 0, len(files))
	for _, f := range files {
		fileList = append(fileList, map[string]interface{}{
			"name":          f.Name,
			"size_bytes":    int64(len(f.Data)),
			"size_readable": formatBytes(int64(len(f.Data))),
		})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"code":       res.Code,
		"qr_payload": res.QRPayload,
		"expires_at": res.ExpiresAt,
		"encrypted":  encrypt,
		"files":      fileList,
	})
}

// GetShare returns the listing for a share: file names and sizes, but never
// payload bytes.
func (h *Handler) GetShare(c echo.Context) error {
	code := c.Param("code")

	rec, err := h.retrieve(code)
	if err != nil {
		return shareError(err)
	}

	files := make([]map[string]interface{}, 0, len(rec.Files))
	for i := range rec.Files {
		f := &rec.Files[i]
		files = append(files, map[string]interface{}{
			"name":          f.Name,
			"size_bytes":    f.Size,
			"size_readable": formatBytes(f.Size),
			"encrypted":     f.Encrypted,
		})
	}

	h.recordEvent(code, "retrieved", "")
	logging.InfoLogger.Printf("Share retrieved: %s", code)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":                rec.Code,
		"created_at":          rec.CreatedAt,
		"expires_at":          rec.ExpiresAt,
		"files":               files,
		"total_size_bytes":    rec.TotalSize(),
		"total_size_readable": formatBytes(rec.TotalSize()),
	})
}

// DownloadFile streams one decrypted file as an attachment. When a share
// holds several files under the same name, the first one wins.
func (h *Handler) DownloadFile(c echo.Context) error {
	code := c.Param("code")
	name := c.Param("name")

	rec, err := h.retrieve(code)
	if err != nil {
		return shareError(err)
	}

	data, err := h.svc.DownloadFile(rec, name)
	if err != nil {
		return shareError(err)
	}

	h.recordEvent(code, "downloaded", name)
	logging.InfoLogger.Printf("File downloaded: %s from share %s", name, code)

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

// archiveRequest selects which files a ZIP download covers. With all set
// the explicit list is ignored and every file is included.
type archiveRequest struct {
	Files      []string `json:"files"`
	All        bool     `json:"all"`
	AllowEmpty bool     `json:"allow_empty"`
}

// DownloadArchive bundles the selected files of a share into one ZIP
// download.
func (h *Handler) DownloadArchive(c echo.Context) error {
	code := c.Param("code")

	var request archiveRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	rec, err := h.retrieve(code)
	if err != nil {
		return shareError(err)
	}

	names := make(map[string]struct{}, len(request.Files))
	if request.All {
		names = share.AllNames(rec)
	} else {
		for _, name := range request.Files {
			names[name] = struct{}{}
		}
	}

	data, err := h.svc.DownloadArchive(rec, names, request.AllowEmpty)
	if err != nil {
		return shareError(err)
	}

	h.recordEvent(code, "archived", fmt.Sprintf("%d files", len(names)))
	logging.InfoLogger.Printf("Archive downloaded: share %s (%d files, %s)", code, len(names), formatBytes(int64(len(data))))

	filename := fmt.Sprintf("share-%s.zip", code)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "application/zip", data)
}

// ShareQR serves the share's QR code as a PNG. Only codes with a live
// record get one.
func (h *Handler) ShareQR(c echo.Context) error {
	code := c.Param("code")

	if _, err := h.retrieve(code); err != nil {
		return shareError(err)
	}

	qrCode, err := qr.Encode(share.QRPayload(code), qr.L, qr.Auto)
	if err != nil {
		logging.ErrorLogger.Printf("Failed to encode QR for share %s: %v", code, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate QR code")
	}
	scaled, err := barcode.Scale(qrCode, qrImageSize, qrImageSize)
	if err != nil {
		logging.ErrorLogger.Printf("Failed to scale QR for share %s: %v", code, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate QR code")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		logging.ErrorLogger.Printf("Failed to render QR for share %s: %v", code, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate QR code")
	}

	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}
