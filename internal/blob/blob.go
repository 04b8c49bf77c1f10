package blob

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kashyapanjali/periskope/internal/domain"
)

var (
	ErrInvalidPath = errors.New("invalid object path")
	ErrNotFound    = errors.New("object not found")
	ErrExists      = errors.New("object already exists")
)

// MaxObjectSize caps a single upload.
const MaxObjectSize = 25 << 20

// Store is a filesystem bucket of attachment objects.
type Store struct {
	root    string
	baseURL string
}

// New creates a bucket rooted at dir. Object URLs are baseURL + "/" + object path.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &Store{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Clean normalizes an object path and rejects paths that escape the bucket.
func Clean(p string) (string, error) {
	if p == "" || strings.Contains(p, `\`) {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean("/" + p)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// Put writes data at p and returns its public reference. Existing objects
// are never replaced: a second Put to the same key returns ErrExists. An empty
// contentType is derived from the extension, then sniffed from the content.
func (s *Store) Put(p string, data []byte, contentType string) (domain.Attachment, error) {
	key, err := Clean(p)
	if err != nil {
		return domain.Attachment{}, err
	}
	if len(data) > MaxObjectSize {
		return domain.Attachment{}, fmt.Errorf("object too large: %d bytes", len(data))
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return domain.Attachment{}, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return domain.Attachment{}, err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return domain.Attachment{}, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return domain.Attachment{}, err
	}
	// Objects are write-once; Link fails instead of replacing an existing key.
	err = os.Link(tmp.Name(), full)
	_ = os.Remove(tmp.Name())
	if errors.Is(err, os.ErrExist) {
		return domain.Attachment{}, ErrExists
	}
	if err != nil {
		return domain.Attachment{}, err
	}

	return domain.Attachment{URL: s.URL(key), MimeType: DetectType(key, data, contentType)}, nil
}

// Owner returns the first segment of an object key, the chat it belongs to.
func Owner(key string) string {
	owner, _, _ := strings.Cut(key, "/")
	return owner
}

// Inline reports whether a content type is safe to render in a browser from
// the public download route. Anything else is served as a download.
func Inline(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "image/") && mt != "image/svg+xml":
		return true
	case strings.HasPrefix(mt, "audio/"), strings.HasPrefix(mt, "video/"):
		return true
	case mt == "text/plain", mt == "application/pdf":
		return true
	}
	return false
}

// Open returns a reader for the object at p and its detected content type.
func (s *Store) Open(p string) (io.ReadSeekCloser, string, error) {
	key, err := Clean(p)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, "", err
	}
	return f, DetectType(key, head[:n], ""), nil
}

// URL returns the public URL of an object key.
func (s *Store) URL(key string) string {
	return s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath()
}

// DetectType picks the declared type, else the extension's type, else a content sniff.
func DetectType(key string, data []byte, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
