package strand

// templateProps is the JSON document Strand embeds in storefront HTML
type templateProps struct {
	Props pageProps `json:"props"`
}

// pageProps carries whichever page payload the template was rendered for
type pageProps struct {
	Storefront *StorefrontDTO `json:"storefront,omitempty"`
	Collection *CollectionDTO `json:"collection,omitempty"`
}

// StorefrontDTO is the landing page payload
type StorefrontDTO struct {
	Containers []ContainerDTO `json:"containers"`
	Pagination *PaginationDTO `json:"pagination,omitempty"`
}

// ContainerDTO is one shelf or grouping of titles
type ContainerDTO struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Type       string         `json:"type"`                 // "rail", "hero", "grid"
	SeeMoreRef string         `json:"seeMoreRef,omitempty"` // Collection ref for deferred loading
	Items      []TitleDTO     `json:"items,omitempty"`      // Inline titles, may be empty when SeeMoreRef is set
	Pagination *PaginationDTO `json:"pagination,omitempty"`
}

// TitleDTO is one movie, series, season or episode
type TitleDTO struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Synopsis       string   `json:"synopsis,omitempty"`
	ContentType    string   `json:"contentType"` // "MOVIE", "SERIES", "SEASON", "EPISODE"
	Year           int      `json:"year,omitempty"`
	RuntimeSeconds int      `json:"runtimeSeconds,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	SeriesID       string   `json:"seriesId,omitempty"` // Set on seasons and episodes
	SeasonID       string   `json:"seasonId,omitempty"` // Set on episodes
	Images         ImageDTO `json:"images"`
}

// ImageDTO groups artwork URLs for a title
type ImageDTO struct {
	Cover      string `json:"cover,omitempty"`
	Poster     string `json:"poster,omitempty"`
	Background string `json:"background,omitempty"`
}

// PaginationDTO carries the cursor for the next slice of a collection
type PaginationDTO struct {
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"hasMore,omitempty"`
}

// CollectionDTO is the payload of the collection and detail endpoints
type CollectionDTO struct {
	Container  ContainerDTO   `json:"container"`
	Pagination *PaginationDTO `json:"pagination,omitempty"`
}

// SearchDTO is the payload of the search endpoint
type SearchDTO struct {
	Results    []TitleDTO     `json:"results"`
	Pagination *PaginationDTO `json:"pagination"`
}

// PlaybackDTO is the payload of the playback resources endpoint
type PlaybackDTO struct {
	PlaybackUrls *PlaybackUrlsDTO    `json:"playbackUrls,omitempty"`
	License      *LicenseDTO         `json:"license,omitempty"`
	AudioTracks  []AudioTrackDTO     `json:"audioTracks,omitempty"`
	TimedText    []TimedTextTrackDTO `json:"timedTextTracks,omitempty"`
	Error        *PlaybackErrorDTO   `json:"error,omitempty"`
}

// PlaybackUrlsDTO carries the manifest grant
type PlaybackUrlsDTO struct {
	MainManifestURL string `json:"mainManifestUrl"`
	StreamingFormat string `json:"streamingFormat,omitempty"` // "DASH" or "HLS"
}

// LicenseDTO carries the DRM license grant
type LicenseDTO struct {
	LicenseURL string `json:"licenseUrl,omitempty"`
}

// AudioTrackDTO is one selectable audio stream
type AudioTrackDTO struct {
	TrackID      string `json:"trackId"`
	LanguageCode string `json:"languageCode"`
	DisplayName  string `json:"displayName,omitempty"`
	IsOriginal   bool   `json:"isOriginalLanguage,omitempty"`
}

// TimedTextTrackDTO is one sidecar subtitle document
type TimedTextTrackDTO struct {
	LanguageCode string `json:"languageCode"`
	DisplayName  string `json:"displayName,omitempty"`
	URL          string `json:"url"`
}

// PlaybackErrorDTO is the structured refusal some playback failures carry
type PlaybackErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ProfileDTO is the payload of the profile endpoint
type ProfileDTO struct {
	CustomerID    string `json:"customerId"`
	Territory     string `json:"territory"`
	MarketplaceID string `json:"marketplaceId"`
	BaseURL       string `json:"baseUrl,omitempty"`
	DRMEntitled   bool   `json:"drmEntitled"`
}
