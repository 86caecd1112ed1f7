package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
)

const formFiles = "files"

type UploadResponse struct {
	Files []UploadedFile `json:"files"`
}

type UploadedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form is required")
	}
	headers := form.File[formFiles]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "files are required")
	}
	saved, err := s.saveUploads(headers)
	if err != nil {
		log.Ctx(c.Request().Context()).Error().Err(err).Msg("api: upload failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "the upload could not be saved")
	}
	return c.JSON(http.StatusOK, UploadResponse{Files: saved})
}

// saveUploads stores each file under the upload dir as
// <timestamp>_<basename>; the client-supplied path is discarded.
func (s *Server) saveUploads(headers []*multipart.FileHeader) ([]UploadedFile, error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	out := make([]UploadedFile, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || name == "." {
			continue
		}
		dst := filepath.Join(s.uploads, stamp+"_"+name)
		if err := copyUpload(fh, dst); err != nil {
			return nil, fmt.Errorf("save %s: %w", name, err)
		}
		out = append(out, UploadedFile{Name: name, Path: dst})
	}
	return out, nil
}

func copyUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readAttachments loads saved uploads as message context. Unreadable files
// become a note instead of failing the turn.
func readAttachments(files []UploadedFile) []contractx.Attachment {
	out := make([]contractx.Attachment, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			out = append(out, contractx.Attachment{Name: f.Name, Text: fmt.Sprintf("[File not found: %s]", f.Name)})
		case err != nil:
			out = append(out, contractx.Attachment{Name: f.Name, Text: fmt.Sprintf("[Could not read %s: %v]", f.Name, err)})
		case !utf8.Valid(raw):
			out = append(out, contractx.Attachment{Name: f.Name, Text: fmt.Sprintf("[Could not read %s: not a text file]", f.Name)})
		default:
			out = append(out, contractx.Attachment{Name: f.Name, Text: strings.TrimSpace(string(raw))})
		}
	}
	return out
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}
