package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

var ErrInvalidSignature = errors.New("invalid or expired signature")

// Storage keeps blobs on the local filesystem and signs download links that
// the API serves back from the same directory.
type Storage struct {
	basePath      string
	publicBaseURL string
	signingKey    []byte
	now           func() time.Time
}

var _ ports.BlobStorage = (*Storage)(nil)

type Options struct {
	PublicBaseURL string
	SigningKey    []byte
}

func New(basePath string) (*Storage, error) {
	return NewWithOptions(basePath, Options{})
}

func NewWithOptions(basePath string, options Options) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	key := options.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	publicBase := strings.TrimRight(options.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = "http://localhost:8080/v1/blobs"
	}

	return &Storage{
		basePath:      basePath,
		publicBaseURL: publicBase,
		signingKey:    key,
		now:           time.Now,
	}, nil
}

func (s *Storage) Put(_ context.Context, key string, data io.Reader) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("commit file: %w", err)
	}
	return nil
}

func (s *Storage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "open blob", fmt.Errorf("key=%s", key))
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// SignedURL returns a download link valid for ttl.
func (s *Storage) SignedURL(key string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	query := url.Values{}
	query.Set("expires", expires)
	query.Set("sig", s.sign(key, expires))
	return s.publicBaseURL + "/" + escapeKey(key) + "?" + query.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (s *Storage) Verify(key, expires, signature string) error {
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > unix {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(s.sign(key, expires)), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *Storage) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a slash-separated key under basePath; ".." cannot escape it.
func (s *Storage) resolve(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob key", fmt.Errorf("empty key"))
	}
	return filepath.Join(s.basePath, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimPrefix(path.Clean("/"+key), "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
