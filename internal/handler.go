package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"drivebox.dev/api/internal/middleware"
	"drivebox.dev/api/internal/service"
)

var (
	errInvalidBody   = errors.New("invalid request body")
	errInvalidFileID = errors.New("invalid file id")
	errMissingFile   = errors.New("multipart field 'file' is required")
	errTooLarge      = errors.New("file exceeds the maximum upload size")
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Logger        logrus.FieldLogger
	Auth          *service.AuthService
	Files         *service.FileService
	Database      Pinger
	MaxUploadSize int64
}

func (h *Handler) Signup(c *gin.Context) {
	var req = &CredentialsReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithError(http.StatusBadRequest, errInvalidBody)
		return
	}

	pair, err := h.Auth.Signup(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenPairRes{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) Signin(c *gin.Context) {
	var req = &CredentialsReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithError(http.StatusBadRequest, errInvalidBody)
		return
	}

	pair, err := h.Auth.Signin(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenPairRes{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *Handler) RenewToken(c *gin.Context) {
	var req = &RefreshTokenReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		// no readable refresh token is the same as a bad one
		abortWithServiceError(c, service.ErrInvalidToken)
		return
	}

	accessToken, err := h.Auth.RenewToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, AccessTokenRes{AccessToken: accessToken})
}

// Logout always succeeds; the body is optional.
func (h *Handler) Logout(c *gin.Context) {
	var req = &RefreshTokenReq{}
	_ = c.ShouldBindJSON(req)

	h.Auth.Logout(c.Request.Context(), req.RefreshToken)
	c.Status(http.StatusNoContent)
}

func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, InfoRes{ID: h.Auth.GetInfo(middleware.UserID(c))})
}

func (h *Handler) UploadFile(c *gin.Context) {
	up, closer, ok := h.readUpload(c)
	if !ok {
		return
	}
	defer closer.Close()

	id, err := h.Files.Upload(c.Request.Context(), up)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, FileIDRes{ID: id})
}

func (h *Handler) ListFiles(c *gin.Context) {
	pageSize := queryInt(c, "list_size")
	page := queryInt(c, "page")

	files, err := h.Files.List(c.Request.Context(), pageSize, page)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	output := ListFilesRes{
		Files: make([]File, 0, len(files)),
	}
	for _, f := range files {
		output.Files = append(output.Files, newFile(f))
	}

	c.JSON(http.StatusOK, output)
}

func (h *Handler) GetFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	file, err := h.Files.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GetFileRes{File: newFile(*file)})
}

func (h *Handler) DownloadFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	dl, err := h.Files.Download(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	defer dl.Content.Close()

	contentType := dl.File.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, dl.Size, contentType, dl.Content, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": dl.File.Name}),
	})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	if err := h.Files.Delete(c.Request.Context(), id); err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h *Handler) UpdateFile(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}

	up, closer, ok := h.readUpload(c)
	if !ok {
		return
	}
	defer closer.Close()

	if err := h.Files.Update(c.Request.Context(), id, up); err != nil {
		abortWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, FileIDRes{ID: id})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.Database.Ping(c.Request.Context()); err != nil {
		h.Logger.Warnf("Health check failed: %s", err)
		c.JSON(http.StatusServiceUnavailable, HealthRes{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, HealthRes{Status: "ok"})
}

// readUpload extracts the multipart field "file", enforcing MaxUploadSize.
func (h *Handler) readUpload(c *gin.Context) (service.Upload, io.Closer, bool) {
	if h.MaxUploadSize > 0 {
		// multipart framing needs some headroom over the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize+1<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.AbortWithError(http.StatusRequestEntityTooLarge, errTooLarge)
			return service.Upload{}, nil, false
		}
		c.AbortWithError(http.StatusBadRequest, errMissingFile)
		return service.Upload{}, nil, false
	}
	if h.MaxUploadSize > 0 && header.Size > h.MaxUploadSize {
		c.AbortWithError(http.StatusRequestEntityTooLarge, errTooLarge)
		return service.Upload{}, nil, false
	}

	f, err := header.Open()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("open multipart file: %w", err))
		return service.Upload{}, nil, false
	}

	return service.Upload{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Size:      header.Size,
		Content:   f,
	}, f, true
}

func abortWithServiceError(c *gin.Context, err error) {
	c.AbortWithError(statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fileID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithError(http.StatusBadRequest, errInvalidFileID)
		return 0, false
	}
	return id, true
}

// queryInt returns 0 for a missing or non-numeric parameter so the service applies its default.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
