package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/convo-go/internal/models"
)

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("file too large")

// URLPrefix is the public path uploads are served under.
const URLPrefix = "/uploads"

// Storage saves uploads under generated names in a directory.
type Storage struct {
	Dir     string
	MaxSize int64 // 0 means unlimited
}

// Saved describes a stored upload.
type Saved struct {
	Name string // Generated name on disk
	Path string // Local path
	URL  string // Public location
	Size int64
}

// NewStorage creates the directory if needed.
func NewStorage(dir string, maxSize int64) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Storage{Dir: dir, MaxSize: maxSize}, nil
}

// CheckSize rejects a declared size over the limit before anything is written.
func (s *Storage) CheckSize(size int64) error {
	if s.MaxSize > 0 && size > s.MaxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, s.MaxSize)
	}
	return nil
}

// Save writes r to a new file named <uuid><ext>, keeping the extension of
// the original name. Content beyond the size limit is rejected and the
// partial file removed.
func (s *Storage) Save(r io.Reader, originalName string) (Saved, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	dst := filepath.Join(s.Dir, name)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Saved{}, fmt.Errorf("create upload: %w", err)
	}

	src := r
	if s.MaxSize > 0 {
		src = io.LimitReader(r, s.MaxSize+1)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = s.CheckSize(n)
	}
	if err != nil {
		_ = os.Remove(dst)
		return Saved{}, fmt.Errorf("save upload: %w", err)
	}

	return Saved{
		Name: name,
		Path: dst,
		URL:  path.Join(URLPrefix, name),
		Size: n,
	}, nil
}

// FileInfo builds the message attachment descriptor for a saved upload.
func (s Saved) FileInfo(originalName, contentType string) *models.FileInfo {
	return &models.FileInfo{
		Filename: filepath.Base(originalName),
		Type:     contentType,
		URL:      s.URL,
		Size:     s.Size,
	}
}
