// Package platform contains the per-network publishers that translate a
// generic publish request into each platform's specific call sequence.
package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/venuepost/publisher/internal/core/domain"
)

// ErrPlatformDisabled is returned by publishers for platforms that are
// registered but no longer supported.
var ErrPlatformDisabled = errors.New("platform not supported")

// Publisher publishes one post to one platform. Implementations fail by
// returning the raw provider error; classification happens upstream.
type Publisher interface {
	// Publish executes the platform's call sequence and returns the
	// external post id (and permalink where the platform provides one).
	Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error)
}

// Registry maps platforms to publishers. Built once at startup; lookups on a
// platform with no registered publisher are a wiring bug surfaced as an
// error, never a silent fallthrough.
type Registry struct {
	publishers map[domain.Platform]Publisher
}

// NewRegistry builds a registry from explicit registrations.
func NewRegistry() *Registry {
	return &Registry{publishers: make(map[domain.Platform]Publisher)}
}

// Register adds a publisher for a platform.
func (r *Registry) Register(p domain.Platform, pub Publisher) {
	r.publishers[p] = pub
}

// Get returns the publisher for a platform.
func (r *Registry) Get(p domain.Platform) (Publisher, error) {
	pub, ok := r.publishers[p]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", p)
	}
	return pub, nil
}
