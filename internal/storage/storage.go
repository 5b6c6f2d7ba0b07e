// Package storage keeps uploaded and generated artifacts on the local
// filesystem under a single root, addressed by relative paths that are safe
// to persist in the database. Downloads go through short-lived HMAC-signed
// URLs so the HTTP layer never exposes raw filesystem paths.
package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"factsheet/internal/config"
)

var (
	// ErrInvalidPath rejects object paths that escape the storage root.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrBadSignature rejects download URLs whose signature or expiry does
	// not check out.
	ErrBadSignature = errors.New("signature invalid or expired")
)

// Gateway reads and writes stored objects and signs download URLs.
type Gateway struct {
	root   string
	secret []byte
	ttl    time.Duration
}

// NewGateway builds a gateway rooted at the configured storage directory.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.Storage.SigningSecret) == "" {
		return nil, errors.New("storage signing secret not configured")
	}
	if err := os.MkdirAll(cfg.Paths.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Gateway{
		root:   cfg.Paths.StorageDir,
		secret: []byte(cfg.Storage.SigningSecret),
		ttl:    time.Duration(cfg.Storage.SignedURLTTLSeconds) * time.Second,
	}, nil
}

// Save stores data under <folder>/<id><ext> and returns the relative object
// path. Writes go through a temp file plus rename so readers never observe a
// partial object, and a sidecar lock serializes concurrent writers of the
// same object.
func (g *Gateway) Save(folder, id, ext string, data []byte) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	objectPath := path.Join(folder, id+ext)
	full, err := g.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	lock := flock.New(full + ".lock")
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("lock object %s: %w", objectPath, err)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(full + ".lock")
	}()

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object %s: %w", objectPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp object: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish object %s: %w", objectPath, err)
	}
	return objectPath, nil
}

// Load reads a stored object by its relative path.
func (g *Gateway) Load(objectPath string) ([]byte, error) {
	full, err := g.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objectPath, err)
	}
	return data, nil
}

// Exists reports whether an object is present.
func (g *Gateway) Exists(objectPath string) bool {
	full, err := g.resolve(objectPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// SignedURL returns the query string for a time-limited download of the
// object, relative to the download endpoint.
func (g *Gateway) SignedURL(objectPath string, now time.Time) (string, error) {
	if _, err := g.resolve(objectPath); err != nil {
		return "", err
	}
	expires := now.Add(g.ttl).Unix()
	sig := g.sign(objectPath, expires)

	values := url.Values{}
	values.Set("path", objectPath)
	values.Set("exp", strconv.FormatInt(expires, 10))
	values.Set("sig", sig)
	return values.Encode(), nil
}

// Verify checks a signed download request. The signature covers both the
// object path and the expiry, so neither can be swapped independently.
func (g *Gateway) Verify(objectPath string, expires int64, signature string, now time.Time) error {
	if _, err := g.resolve(objectPath); err != nil {
		return err
	}
	if now.Unix() > expires {
		return fmt.Errorf("%w: expired", ErrBadSignature)
	}
	expected := g.sign(objectPath, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

func (g *Gateway) sign(objectPath string, expires int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s\n%d", objectPath, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a relative object path onto the storage root, rejecting
// absolute paths and traversal outside the root.
func (g *Gateway) resolve(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	cleaned := path.Clean(objectPath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return filepath.Join(g.root, filepath.FromSlash(cleaned)), nil
}

// ContentTypeFor maps stored artifact extensions onto download content types.
func ContentTypeFor(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
