package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/service"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type UploadHandler struct {
	blobs service.BlobStore
	log   logger.Logger
}

func NewUploadHandler(blobs service.BlobStore, log logger.Logger) *UploadHandler {
	return &UploadHandler{blobs: blobs, log: log}
}

type UploadResponse struct {
	URLs  []string             `json:"urls"`
	Kinds []domain.MessageKind `json:"kinds"`
	Files []service.StoredBlob `json:"files"`
}

// Upload сохраняет файлы из поля files. Сообщение клиент отправляет отдельно.
func (h *UploadHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.Error(fmt.Errorf("invalid multipart form: %w", errors.ErrValidation))
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.Error(fmt.Errorf("no files uploaded: %w", errors.ErrValidation))
		return
	}
	if len(files) > h.blobs.MaxFiles() {
		c.Error(fmt.Errorf("at most %d files per upload: %w", h.blobs.MaxFiles(), errors.ErrValidation))
		return
	}

	resp := UploadResponse{
		URLs:  make([]string, 0, len(files)),
		Kinds: make([]domain.MessageKind, 0, len(files)),
		Files: make([]service.StoredBlob, 0, len(files)),
	}
	for _, file := range files {
		blob, err := h.blobs.Store(c.Request.Context(), file)
		if err != nil {
			c.Error(err)
			return
		}
		resp.URLs = append(resp.URLs, blob.URL)
		resp.Kinds = append(resp.Kinds, blob.Kind)
		resp.Files = append(resp.Files, blob)
	}

	h.log.Info("Files uploaded", "count", len(files))
	c.JSON(http.StatusOK, resp)
}
