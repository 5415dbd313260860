package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

var allowedUploadExt = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

var imageExt = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
}

type StoredBlob struct {
	URL  string             `json:"url"`
	Name string             `json:"name"`
	Kind domain.MessageKind `json:"type"`
	Size int64              `json:"size"`
}

// BlobStore превращает загруженный файл в URL для сообщения image/file
type BlobStore interface {
	Store(ctx context.Context, file *multipart.FileHeader) (StoredBlob, error)
	MaxFiles() int
}

// KindForFile: картинки по расширению, остальное - file
func KindForFile(name string) domain.MessageKind {
	if imageExt[strings.ToLower(filepath.Ext(name))] {
		return domain.MessageKindImage
	}
	return domain.MessageKindFile
}

type localBlobStore struct {
	cfg config.UploadConfig
	now func() time.Time
	log logger.Logger
}

func NewLocalBlobStore(cfg config.UploadConfig, log logger.Logger) (BlobStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localBlobStore{cfg: cfg, now: time.Now, log: log}, nil
}

func (s *localBlobStore) MaxFiles() int {
	return s.cfg.MaxFiles
}

func (s *localBlobStore) Store(ctx context.Context, file *multipart.FileHeader) (StoredBlob, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedUploadExt[ext] {
		return StoredBlob{}, fmt.Errorf("file type %q not allowed: %w", ext, errors.ErrValidation)
	}
	if file.Size > s.cfg.MaxBytes {
		return StoredBlob{}, fmt.Errorf("file %q exceeds %d bytes: %w", file.Filename, s.cfg.MaxBytes, errors.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return StoredBlob{}, err
	}

	src, err := file.Open()
	if err != nil {
		return StoredBlob{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
	dstPath := filepath.Join(s.cfg.Dir, name)
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return StoredBlob{}, fmt.Errorf("create blob: %w", err)
	}

	// лимит на случай, если заголовок соврал о размере
	written, err := io.Copy(dst, io.LimitReader(src, s.cfg.MaxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.cfg.MaxBytes {
		err = fmt.Errorf("file %q exceeds %d bytes: %w", file.Filename, s.cfg.MaxBytes, errors.ErrValidation)
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return StoredBlob{}, err
	}

	s.log.Debug("Blob stored", "name", name, "size", written)
	return StoredBlob{
		URL:  path.Join(s.cfg.URLPrefix, name),
		Name: file.Filename,
		Kind: KindForFile(file.Filename),
		Size: written,
	}, nil
}
