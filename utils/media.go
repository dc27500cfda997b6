package utils

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/cppla/blogsite/config"
)

var (
	ErrImageTooLarge = errors.New("image exceeds the upload size limit")
	ErrNotAnImage    = errors.New("uploaded file is not an image")
)

// SaveImage stores an uploaded post image under the media root and returns its public URL.
// The content type is sniffed from the bytes; the client supplied name and type are ignored.
func SaveImage(header *multipart.FileHeader) (string, error) {
	cfg := config.Get()
	maxSize := int64(cfg.MaxUploadMB) * 1024 * 1024
	if header.Size > maxSize {
		return "", ErrImageTooLarge
	}

	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("detect image type: %w", err)
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotAnImage
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	datePath := time.Now().Format("2006/01/02")
	dir := filepath.Join(cfg.MediaRoot, "posts", filepath.FromSlash(datePath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	name := uuid.NewString() + mt.Extension()
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	written, err := io.Copy(out, &io.LimitedReader{R: file, N: maxSize + 1})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > maxSize {
		err = ErrImageTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}

	return path.Join(cfg.MediaURL, "posts", datePath, name), nil
}

// RemoveMedia deletes a file previously returned by SaveImage. Unknown URLs are ignored.
func RemoveMedia(url string) {
	cfg := config.Get()
	prefix := strings.TrimRight(cfg.MediaURL, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return
	}
	rel := filepath.FromSlash(strings.TrimPrefix(url, prefix))
	if err := os.Remove(filepath.Join(cfg.MediaRoot, rel)); err != nil && !os.IsNotExist(err) {
		Sugar.Warnf("remove media failed url=%s err=%v", url, err)
	}
}
