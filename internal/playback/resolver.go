package playback

import (
	"context"
	"log/slog"

	"github.com/marqueetv/marquee/internal/domain"
)

// Catalog is the slice of the browse tree the resolver consults to
// confirm an item exists before asking the provider for a grant.
type Catalog interface {
	Item(id string) (*domain.Item, bool)
}

// Profiles serves the cached account profile
type Profiles interface {
	Profile(ctx context.Context) (*domain.RegionInfo, error)
}

// Resolver turns catalog items into playable stream descriptors.
// Descriptors carry short-lived device-bound grants, so nothing here
// is ever cached.
type Resolver struct {
	source   domain.PlaybackSource
	auth     domain.Authorizer
	catalog  Catalog
	profiles Profiles
	logger   *slog.Logger
}

// NewResolver creates a playback resolver
func NewResolver(source domain.PlaybackSource, auth domain.Authorizer, catalog Catalog, profiles Profiles, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source:   source,
		auth:     auth,
		catalog:  catalog,
		profiles: profiles,
		logger:   logger,
	}
}

// GetPlayable requests a fresh stream grant for one item. The session
// gate comes first: without one, no provider traffic is sent at all.
func (r *Resolver) GetPlayable(ctx context.Context, itemID string) (*domain.PlayableDescriptor, error) {
	if !r.auth.Authenticated() {
		return nil, &domain.AuthError{Op: "playback", Reason: "not signed in"}
	}
	if _, ok := r.catalog.Item(itemID); !ok {
		return nil, &domain.NotFoundError{Kind: "item", Ref: itemID}
	}

	d, err := r.source.Playable(ctx, itemID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("resolved stream",
		"item", itemID,
		"type", d.ManifestType,
		"drm", d.DRMProtected(),
		"audioTracks", len(d.AudioTracks))
	return d, nil
}

// RegionInfo reports the account's territory and marketplace
func (r *Resolver) RegionInfo(ctx context.Context) (*domain.RegionInfo, error) {
	return r.profiles.Profile(ctx)
}

// DRMReady reports whether the account's entitlements allow protected
// streams on this device
func (r *Resolver) DRMReady(ctx context.Context) (bool, error) {
	profile, err := r.profiles.Profile(ctx)
	if err != nil {
		return false, err
	}
	return profile.DRMReady, nil
}
