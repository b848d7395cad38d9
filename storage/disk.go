// Package storage keeps attachment bytes outside of the document store.
// Backends only store and delete; type checks happen on the way in.
package storage

import (
	"chat-core/domain"
	"chat-core/domain/mimetypes"
	"chat-core/errors"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStorage writes attachments under a local directory served at baseURL.
type DiskStorage struct {
	root    string
	baseURL string
	log     *slog.Logger
}

func NewDiskStorage(root, baseURL string, log *slog.Logger) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment directory: %w", err)
	}
	return &DiskStorage{root: root, baseURL: strings.TrimSuffix(baseURL, "/"), log: log}, nil
}

func (d *DiskStorage) Save(ctx context.Context, upload domain.Upload) (domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, err
	}
	contentType, ext, ok := mimetypes.Detect(upload.Data)
	if !ok {
		return domain.Attachment{}, fmt.Errorf("%s: %w", upload.Name, errors.ErrUnsupportedAttachment)
	}
	name := newObjectName(ext)
	if err := os.WriteFile(filepath.Join(d.root, name), upload.Data, 0o644); err != nil {
		return domain.Attachment{}, fmt.Errorf("write attachment %s: %w", upload.Name, err)
	}
	d.log.Debug("Attachment stored", "name", upload.Name, "path", name, "size", len(upload.Data))
	return domain.Attachment{
		URL:         d.baseURL + "/" + name,
		Path:        name,
		ContentType: string(contentType),
	}, nil
}

// Remove deletes the file; a file already gone is not an error.
func (d *DiskStorage) Remove(ctx context.Context, attachment domain.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(d.root, filepath.Base(attachment.Path)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove attachment %s: %w", attachment.Path, err)
	}
	return nil
}

// Root is the directory to serve at the base URL.
func (d *DiskStorage) Root() string { return d.root }

// Handler serves stored files by name. Directories are never listed.
func (d *DiskStorage) Handler() http.Handler {
	return http.FileServer(filesOnly{fs: http.Dir(d.root)})
}

// filesOnly reports directories as missing so the store cannot be enumerated.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func newObjectName(ext string) string { return uuid.NewString() + ext }
