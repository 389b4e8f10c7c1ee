package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DownloadScope is the signer scope used for local media download tokens.
const DownloadScope = "media"

// LocalStorage persists objects on disk under a base directory and serves them
// through signed download URLs.
type LocalStorage struct {
	baseDir       string
	publicBaseURL string
	signer        *SignedURLSigner
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, publicBaseURL string, signer *SignedURLSigner) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./media"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalStorage{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		signer:        signer,
	}, nil
}

// Put streams r into the object path, creating parent directories.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) (Object, error) {
	path, key, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Object{}, fmt.Errorf("prepare media directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return Object{}, fmt.Errorf("create media file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	written, err := io.Copy(file, r)
	if err != nil {
		return Object{}, fmt.Errorf("write media file: %w", err)
	}
	return Object{Key: key, URL: s.PublicURL(key), Size: written, ContentType: contentType}, nil
}

// Get opens the stored file for reading.
func (s *LocalStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, _, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open media file: %w", err)
	}
	return file, nil
}

// Exists reports whether the key is present on disk.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	path, _, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat media file: %w", err)
	}
	return !info.IsDir(), nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	path, _, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

// PublicURL returns a signed download link, or an empty string if no signer
// secret is configured.
func (s *LocalStorage) PublicURL(key string) string {
	if s.signer == nil {
		return ""
	}
	token, _, err := s.signer.Generate(DownloadScope, key)
	if err != nil {
		return ""
	}
	return s.publicBaseURL + "/media/download?token=" + url.QueryEscape(token)
}

// ResolveToken validates a download token and returns the object key it grants.
func (s *LocalStorage) ResolveToken(token string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("signed downloads disabled")
	}
	scope, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", err
	}
	if scope != DownloadScope {
		return "", fmt.Errorf("token scope mismatch")
	}
	return key, nil
}

func (s *LocalStorage) resolve(key string) (string, string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(clean)), clean, nil
}
