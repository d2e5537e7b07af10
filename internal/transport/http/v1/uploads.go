package v1

import (
	"errors"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/domusnext/eval/internal/adapter/blob"
	"github.com/domusnext/eval/internal/service"
)

// Upload stores a multipart file.
// POST /uploads
func (h *Handler) Upload(c echo.Context) error {
	in := service.UploadInput{Type: c.FormValue("type")}

	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return h.fail(c, err)
		}
		defer f.Close()
		in.Body = f
		in.Filename = fh.Filename
		in.ContentType = fh.Header.Get(echo.HeaderContentType)
	}

	res, err := h.service.Upload(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ServeUpload streams a stored upload back with its recorded headers.
// GET /uploads/*
func (h *Handler) ServeUpload(c echo.Context) error {
	bucket := h.service.Bucket()
	if bucket == nil {
		return echo.ErrNotFound
	}
	key := path.Join("uploads", c.Param("*"))

	f, info, err := bucket.Open(c.Request().Context(), key)
	if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey) {
		return echo.ErrNotFound
	}
	if err != nil {
		return h.fail(c, err)
	}
	defer f.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, info.ContentType)
	if info.ContentDisposition != "" {
		header.Set(echo.HeaderContentDisposition, info.ContentDisposition)
	}
	http.ServeContent(c.Response(), c.Request(), "", info.ModTime, f)
	return nil
}
