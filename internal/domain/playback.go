package domain

// ManifestType identifies the streaming format of a manifest
type ManifestType string

const (
	ManifestDASH ManifestType = "dash"
	ManifestHLS  ManifestType = "hls"
)

// AudioTrack describes one selectable audio stream
type AudioTrack struct {
	ID          string // Provider track identifier
	Language    string // BCP 47 language tag, e.g. "en-US"
	DisplayName string // Human-readable label
	Original    bool   // True for the original-language track
}

// SubtitleTrack describes one sidecar subtitle document
type SubtitleTrack struct {
	Language    string // BCP 47 language tag
	DisplayName string // Human-readable label
	URL         string // Subtitle document URL
}

// PlayableDescriptor carries everything a player needs to start one
// stream. Descriptors embed short-lived grants and must never be cached.
type PlayableDescriptor struct {
	ItemID         string            // Item the grant was issued for
	ManifestURL    string            // Primary manifest URL
	ManifestType   ManifestType      // Manifest format
	LicenseURL     string            // DRM license endpoint, empty for clear content
	Headers        map[string]string // Headers to send with manifest and license requests
	AudioTracks    []AudioTrack      // Selectable audio streams
	SubtitleTracks []SubtitleTrack   // Selectable subtitle documents
}

// DRMProtected reports whether playback requires a license exchange.
func (d *PlayableDescriptor) DRMProtected() bool {
	return d.LicenseURL != ""
}

// RegionInfo describes the storefront territory the account is pinned to
type RegionInfo struct {
	Territory     string // ISO country code, e.g. "US"
	MarketplaceID string // Provider marketplace identifier
	BaseURL       string // Storefront origin for this territory
	DRMReady      bool   // Whether the account passed the entitlement probe
}
