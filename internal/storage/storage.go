package storage

import (
	"context"
	"io"
	"time"
)

// Downloader fetches recorded audio by object path.
type Downloader interface {
	Download(ctx context.Context, objectName string) ([]byte, error)
}

// Uploader stores processed artifacts (cleaned audio, exports).
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}
