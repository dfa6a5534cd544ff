package files

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidName = errors.New("invalid file name")
)

// Store keeps chat attachments on local disk under unguessable names
type Store struct {
	dir     string
	maxSize int64
}

// Stored describes a file written by Save
type Stored struct {
	Name        string // Name on disk
	Original    string // Sanitised client file name
	ContentType string
	Size        int64
}

// NewStore creates the upload directory if needed
func NewStore(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// MaxSize is the largest accepted upload in bytes
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Save copies an uploaded multipart file into the store
func (s *Store) Save(fh *multipart.FileHeader) (*Stored, error) {
	if fh.Size > s.maxSize {
		return nil, ErrTooLarge
	}

	original := SanitizeFilename(fh.Filename)
	ext := strings.ToLower(filepath.Ext(original))
	name := uuid.New().String() + ext

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	path := filepath.Join(s.dir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(dst, io.LimitReader(src, s.maxSize+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if n > s.maxSize {
		os.Remove(path)
		return nil, ErrTooLarge
	}

	return &Stored{
		Name:        name,
		Original:    original,
		ContentType: detectContentType(fh.Header.Get("Content-Type"), ext),
		Size:        n,
	}, nil
}

// Path resolves a stored name to its location on disk
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// Remove deletes a stored file; a missing file is not an error
func (s *Store) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SanitizeFilename strips directories and control characters from a client file name
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}
	return name
}

func detectContentType(header, ext string) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
