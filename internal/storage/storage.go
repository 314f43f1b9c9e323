// Package storage abstracts the external media host that serves user
// avatars, course thumbnails, and lecture media. An upload yields a
// stable reference id (the object key) and a public URL; both are stored
// on the owning record so the asset can be replaced or deleted later.
package storage

import (
	"context"
	"io"
)

// Asset is the result of a successful upload.
type Asset struct {
	ID  string // stable reference id, usable with Delete
	URL string // public URL the asset is served from
}

// Service uploads and deletes media objects.
type Service interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (Asset, error)
	Delete(ctx context.Context, id string) error
}

// Unconfigured is the Service used when no media host is configured.
// Every call fails with ErrNotConfigured; callers decide whether that is
// fatal (profile avatar replacement) or survivable (registration keeps
// the default avatar).
type Unconfigured struct{}

type notConfiguredError struct{}

func (notConfiguredError) Error() string { return "storage: media storage is not configured" }

// ErrNotConfigured is returned by the Unconfigured service.
var ErrNotConfigured error = notConfiguredError{}

func (Unconfigured) Upload(ctx context.Context, key string, body io.Reader, contentType string) (Asset, error) {
	return Asset{}, ErrNotConfigured
}

func (Unconfigured) Delete(ctx context.Context, id string) error {
	return ErrNotConfigured
}

var _ Service = Unconfigured{}
