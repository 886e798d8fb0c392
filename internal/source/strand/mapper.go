package strand

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/marqueetv/marquee/internal/domain"
)

// refDetailPrefix marks lazy refs that expand through the detail
// endpoint instead of the collection endpoint
const refDetailPrefix = "detail:"

var errMissingManifest = errors.New("playback response carries no manifest")

// mapKind normalizes the provider content type. The second return is
// false for kinds this client does not model.
func mapKind(contentType string) (domain.MediaKind, bool) {
	switch strings.ToUpper(contentType) {
	case "MOVIE", "FEATURE":
		return domain.MediaKindMovie, true
	case "SERIES", "SHOW":
		return domain.MediaKindShow, true
	case "SEASON":
		return domain.MediaKindSeason, true
	case "EPISODE":
		return domain.MediaKindEpisode, true
	default:
		return 0, false
	}
}

// mapTitle converts a single title to a domain item. The second return
// is false for titles too malformed to keep.
func mapTitle(t TitleDTO) (*domain.Item, bool) {
	if t.ID == "" || t.Title == "" {
		return nil, false
	}
	kind, ok := mapKind(t.ContentType)
	if !ok {
		return nil, false
	}

	item := &domain.Item{
		ID:       t.ID,
		Title:    t.Title,
		Plot:     t.Synopsis,
		Year:     t.Year,
		Duration: time.Duration(t.RuntimeSeconds) * time.Second,
		Kind:     kind,
		Genres:   t.Genres,
		Art: domain.Art{
			Thumb:  t.Images.Cover,
			Poster: t.Images.Poster,
			Fanart: t.Images.Background,
		},
	}

	switch kind {
	case domain.MediaKindEpisode:
		item.ParentID = t.SeasonID
		if item.ParentID == "" {
			item.ParentID = t.SeriesID
		}
	case domain.MediaKindSeason:
		item.ParentID = t.SeriesID
	}

	return item, true
}

// titleNode wraps an item in its catalog node. Movies and episodes are
// leaves; series and seasons stay expandable through the detail endpoint.
func titleNode(item *domain.Item) *domain.CatalogNode {
	node := &domain.CatalogNode{
		ID:    item.ID,
		Title: item.Title,
		Kind:  domain.NodeKindLeaf,
		Item:  item,
	}
	if !item.Kind.Playable() {
		node.Kind = domain.NodeKindContainer
		node.LazyRef = refDetailPrefix + item.ID
	}
	return node
}

// mapTitles converts a title list to catalog nodes, dropping what the
// provider sent malformed and keeping the rest in order.
func mapTitles(titles []TitleDTO, logger *slog.Logger) []*domain.CatalogNode {
	nodes := make([]*domain.CatalogNode, 0, len(titles))
	for _, t := range titles {
		item, ok := mapTitle(t)
		if !ok {
			logger.Debug("dropping unmappable title", "id", t.ID, "contentType", t.ContentType)
			continue
		}
		nodes = append(nodes, titleNode(item))
	}
	return nodes
}

// mapRail converts one storefront container to a rail node plus its
// inline children, if the provider sent any.
func mapRail(c ContainerDTO, logger *slog.Logger) (*domain.CatalogNode, []*domain.CatalogNode) {
	rail := &domain.CatalogNode{
		ID:    c.ID,
		Title: c.Title,
		Kind:  domain.NodeKindRail,
	}

	children := mapTitles(c.Items, logger)
	if len(children) > 0 {
		for _, ch := range children {
			rail.Children = append(rail.Children, ch.ID)
		}
		if c.Pagination != nil && c.Pagination.HasMore {
			rail.NextCursor = c.Pagination.Cursor
			rail.PageRef = c.SeeMoreRef
		}
		return rail, children
	}

	// Nothing inline: the rail body loads lazily through its ref
	rail.LazyRef = c.SeeMoreRef
	return rail, nil
}

// mapStorefront converts the landing payload to the root catalog page
func mapStorefront(dto *StorefrontDTO, logger *slog.Logger) *domain.CatalogPage {
	root := &domain.CatalogNode{
		ID:    domain.RootNodeID,
		Title: "Home",
		Kind:  domain.NodeKindContainer,
	}

	var children []*domain.CatalogNode
	for _, c := range dto.Containers {
		if c.ID == "" {
			logger.Debug("dropping container without id", "title", c.Title)
			continue
		}
		rail, railChildren := mapRail(c, logger)
		rail.ParentID = root.ID
		root.Children = append(root.Children, rail.ID)
		children = append(children, rail)
		for _, ch := range railChildren {
			ch.ParentID = rail.ID
			children = append(children, ch)
		}
	}

	cursor := ""
	if dto.Pagination != nil && dto.Pagination.HasMore {
		cursor = dto.Pagination.Cursor
	}

	return &domain.CatalogPage{Node: root, Children: children, Cursor: cursor}
}

// mapCollection converts a collection or detail payload to one page of
// child nodes
func mapCollection(dto *CollectionDTO, logger *slog.Logger) *domain.CatalogPage {
	page := &domain.CatalogPage{
		Children: mapTitles(dto.Container.Items, logger),
	}
	if dto.Pagination != nil && dto.Pagination.HasMore {
		page.Cursor = dto.Pagination.Cursor
	}
	return page
}

// mapSearch converts one page of search results
func mapSearch(dto *SearchDTO, logger *slog.Logger) *domain.CatalogPage {
	page := &domain.CatalogPage{
		Children: mapTitles(dto.Results, logger),
	}
	if dto.Pagination != nil && dto.Pagination.HasMore {
		page.Cursor = dto.Pagination.Cursor
	}
	return page
}

// mapPlayback converts a playback grant to a descriptor. Responses
// without a manifest are refusals regardless of HTTP status.
func mapPlayback(dto *PlaybackDTO, itemID string) (*domain.PlayableDescriptor, error) {
	if dto.PlaybackUrls == nil || dto.PlaybackUrls.MainManifestURL == "" {
		return nil, errMissingManifest
	}

	d := &domain.PlayableDescriptor{
		ItemID:       itemID,
		ManifestURL:  dto.PlaybackUrls.MainManifestURL,
		ManifestType: manifestType(dto.PlaybackUrls.StreamingFormat),
	}
	if dto.License != nil {
		d.LicenseURL = dto.License.LicenseURL
	}

	for _, t := range dto.AudioTracks {
		d.AudioTracks = append(d.AudioTracks, domain.AudioTrack{
			ID:          t.TrackID,
			Language:    t.LanguageCode,
			DisplayName: trackDisplayName(t.DisplayName, t.LanguageCode),
			Original:    t.IsOriginal,
		})
	}
	for _, t := range dto.TimedText {
		if t.URL == "" {
			continue
		}
		d.SubtitleTracks = append(d.SubtitleTracks, domain.SubtitleTrack{
			Language:    t.LanguageCode,
			DisplayName: trackDisplayName(t.DisplayName, t.LanguageCode),
			URL:         t.URL,
		})
	}

	return d, nil
}

func manifestType(format string) domain.ManifestType {
	if strings.EqualFold(format, "HLS") {
		return domain.ManifestHLS
	}
	return domain.ManifestDASH
}

// trackDisplayName prefers the provider label, falling back to the
// English name of the language tag
func trackDisplayName(label, code string) string {
	if label != "" {
		return label
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// mapProfile converts the profile payload to region info
func mapProfile(dto *ProfileDTO) *domain.RegionInfo {
	return &domain.RegionInfo{
		Territory:     dto.Territory,
		MarketplaceID: dto.MarketplaceID,
		BaseURL:       dto.BaseURL,
		DRMReady:      dto.DRMEntitled,
	}
}
