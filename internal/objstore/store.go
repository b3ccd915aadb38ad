package objstore

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

// ErrNotExist is returned by Open when the key has no stored object.
var ErrNotExist = errors.New("objstore: object does not exist")

// Attributes describes a stored object.
type Attributes struct {
	ContentType string
	Size        int64
}

// Store is the byte-storage contract used for message attachments and avatars.
// Keys are created once and never mutated in place.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, Attributes, error)
	Delete(ctx context.Context, key string) error
}

type Config struct {
	Driver         string // file|s3
	BaseDir        string // file driver
	Bucket         string // s3 driver
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

func Validate(c Config) error {
	switch strings.ToLower(c.Driver) {
	case "s3":
		if c.Bucket == "" {
			return errors.New("bucket required for s3 driver")
		}
	case "file", "":
		if c.BaseDir == "" {
			return errors.New("base_dir required for file driver")
		}
		if err := os.MkdirAll(c.BaseDir, 0o755); err != nil {
			return fmt.Errorf("ensure base_dir: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Driver)
	}
	return nil
}

// New opens the configured driver.
func New(ctx context.Context, c Config) (Store, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	switch strings.ToLower(c.Driver) {
	case "s3":
		return openS3(ctx, c)
	default:
		return openFile(c)
	}
}

// sanitizeKey prevents path traversal.
func sanitizeKey(key string) string {
	key = filepath.ToSlash(key)
	key = strings.TrimLeft(key, "/")
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}

// buildS3URL constructs a gocloud s3 URL with query params.
func buildS3URL(c Config) string {
	u := url.URL{Scheme: "s3", Host: c.Bucket}
	q := url.Values{}
	if c.Region != "" {
		q.Set("region", c.Region)
	}
	if c.Endpoint != "" {
		q.Set("endpoint", c.Endpoint)
	}
	if c.ForcePathStyle {
		q.Set("s3ForcePathStyle", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
