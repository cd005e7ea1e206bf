package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"drivebox.dev/api/internal/database"
	"drivebox.dev/api/internal/storage"
)

const (
	DefaultPageSize = 10
	DefaultPage     = 1
)

type FileStore interface {
	CreateFile(ctx context.Context, file *database.DBFile) (int64, error)
	GetFileByID(ctx context.Context, id int64) (*database.DBFile, bool, error)
	ListFiles(ctx context.Context, limit, offset int) ([]database.DBFile, error)
	UpdateFile(ctx context.Context, file *database.DBFile) (bool, error)
	DeleteFileByID(ctx context.Context, id int64) (bool, error)
}

type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, name string) error
}

// Upload describes an incoming file; Size is the client-declared size and is replaced by
// the number of bytes actually stored.
type Upload struct {
	Name      string
	MediaType string
	Size      int64
	Content   io.Reader
}

type Download struct {
	File    database.DBFile
	Size    int64
	Content io.ReadCloser
}

type FileService struct {
	files  FileStore
	blobs  BlobStore
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewFileService(files FileStore, blobs BlobStore, logger logrus.FieldLogger) *FileService {
	return &FileService{files: files, blobs: blobs, logger: logger, now: time.Now}
}

// Upload writes the blob first and the metadata row second, so a failure can leave an
// orphan blob but never a row without a blob.
func (s *FileService) Upload(ctx context.Context, up Upload) (int64, error) {
	file, err := s.storeBlob(ctx, up)
	if err != nil {
		return 0, err
	}

	id, err := s.files.CreateFile(ctx, file)
	if err != nil {
		s.discardBlob(ctx, file.FileName)
		return 0, fmt.Errorf("%w: insert file: %w", ErrInternal, err)
	}

	s.logger.WithFields(logrus.Fields{"id": id, "stored_name": file.FileName, "size": file.Size}).Info("File uploaded")
	return id, nil
}

// List returns page pageNumber (1-based) of size pageSize in insertion order.
// Non-positive arguments fall back to page 1 / size 10.
func (s *FileService) List(ctx context.Context, pageSize, pageNumber int) ([]database.DBFile, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageNumber <= 0 {
		pageNumber = DefaultPage
	}

	// an offset that does not fit in an int is past any real last page
	if pageNumber-1 > math.MaxInt/pageSize {
		return []database.DBFile{}, nil
	}

	files, err := s.files.ListFiles(ctx, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %w", ErrInternal, err)
	}
	return files, nil
}

func (s *FileService) Get(ctx context.Context, id int64) (*database.DBFile, error) {
	file, found, err := s.files.GetFileByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get file: %w", ErrInternal, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return file, nil
}

// Download resolves the row and opens its blob. The caller closes Content.
func (s *FileService) Download(ctx context.Context, id int64) (*Download, error) {
	file, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	content, size, err := s.blobs.Open(ctx, file.FileName)
	if errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.WithFields(logrus.Fields{"id": id, "stored_name": file.FileName}).Error("File row has no blob")
		return nil, ErrIntegrity
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open blob: %w", ErrInternal, err)
	}

	return &Download{File: *file, Size: size, Content: content}, nil
}

// Delete removes the blob and then the row. If the blob cannot be removed the row is kept.
// A blob that is already gone counts as removed.
func (s *FileService) Delete(ctx context.Context, id int64) error {
	file, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.blobs.Remove(ctx, file.FileName)
	if errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.WithFields(logrus.Fields{"id": id, "stored_name": file.FileName}).Warn("Blob already missing, deleting row")
	} else if err != nil {
		return fmt.Errorf("%w: remove blob: %w", ErrInternal, err)
	}

	deleted, err := s.files.DeleteFileByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete file: %w", ErrInternal, err)
	}
	if !deleted {
		return ErrNotFound
	}

	s.logger.WithField("id", id).Info("File deleted")
	return nil
}

// Update replaces the content and metadata of file id. The new blob is written under a
// fresh name, the row is switched to it, and only then is the old blob removed. A failed
// row update removes the new blob and leaves the old row and blob untouched.
func (s *FileService) Update(ctx context.Context, id int64, up Upload) error {
	old, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	file, err := s.storeBlob(ctx, up)
	if err != nil {
		return err
	}
	file.Id = id

	updated, err := s.files.UpdateFile(ctx, file)
	if err != nil || !updated {
		s.discardBlob(ctx, file.FileName)
		if err != nil {
			return fmt.Errorf("%w: update file: %w", ErrInternal, err)
		}
		return ErrNotFound
	}

	if err := s.blobs.Remove(ctx, old.FileName); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		s.logger.WithFields(logrus.Fields{"id": id, "stored_name": old.FileName}).Warnf("Failed to remove replaced blob: %s", err)
	}

	s.logger.WithFields(logrus.Fields{"id": id, "stored_name": file.FileName}).Info("File updated")
	return nil
}

func (s *FileService) storeBlob(ctx context.Context, up Upload) (*database.DBFile, error) {
	if up.Content == nil {
		return nil, fmt.Errorf("%w: missing file content", ErrValidation)
	}
	name := filepath.Base(strings.TrimSpace(up.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: missing file name", ErrValidation)
	}

	storedName := s.StoredName(name)
	n, err := s.blobs.Put(ctx, storedName, up.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: write blob: %w", ErrInternal, err)
	}
	if up.Size > 0 && up.Size != n {
		s.logger.WithField("stored_name", storedName).Warnf("Declared size %d differs from stored size %d", up.Size, n)
	}

	return &database.DBFile{
		Name:       name,
		FileName:   storedName,
		MimeType:   up.MediaType,
		Size:       n,
		UploadDate: s.now().UTC(),
	}, nil
}

// StoredName builds "file-<unix ms>-<uuid><ext>" for an original name.
func (s *FileService) StoredName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return fmt.Sprintf("file-%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
}

func (s *FileService) discardBlob(ctx context.Context, storedName string) {
	if err := s.blobs.Remove(ctx, storedName); err != nil {
		s.logger.WithField("stored_name", storedName).Warnf("Failed to remove orphan blob: %s", err)
	}
}
