package platform

import (
	"context"
	"fmt"

	"github.com/venuepost/publisher/internal/core/domain"
)

// LegacyPublisher is the stub for platforms we no longer publish to. Every
// dispatch fails immediately and deterministically without touching the
// network.
type LegacyPublisher struct {
	platform domain.Platform
}

// NewLegacyPublisher creates a disabled publisher for the given platform.
func NewLegacyPublisher(p domain.Platform) *LegacyPublisher {
	return &LegacyPublisher{platform: p}
}

// Publish implements Publisher.
func (p *LegacyPublisher) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	return nil, fmt.Errorf("%s: %w", p.platform, ErrPlatformDisabled)
}
