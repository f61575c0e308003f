package googlebooks

import (
	"strings"

	"github.com/booklens/backend/internal/domain"
)

// VolumesResponse is the body of GET /volumes
type VolumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []Volume `json:"items"`
}

// Volume is a single search hit
type Volume struct {
	ID         string     `json:"id"`
	VolumeInfo VolumeInfo `json:"volumeInfo"`
}

// VolumeInfo holds the bibliographic fields of a volume
type VolumeInfo struct {
	Title               string               `json:"title"`
	Subtitle            string               `json:"subtitle"`
	Authors             []string             `json:"authors"`
	Publisher           string               `json:"publisher"`
	Description         string               `json:"description"`
	IndustryIdentifiers []IndustryIdentifier `json:"industryIdentifiers"`
	ImageLinks          *ImageLinks          `json:"imageLinks"`
	InfoLink            string               `json:"infoLink"`
	CanonicalVolumeLink string               `json:"canonicalVolumeLink"`
}

// IndustryIdentifier is an ISBN or other identifier
type IndustryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// ImageLinks holds cover thumbnails
type ImageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
}

// MapToCatalogRecords converts volumes to catalog records, skipping untitled ones
func MapToCatalogRecords(volumes []Volume) []domain.CatalogRecord {
	records := make([]domain.CatalogRecord, 0, len(volumes))
	for _, volume := range volumes {
		if strings.TrimSpace(volume.VolumeInfo.Title) == "" {
			continue
		}
		records = append(records, MapToCatalogRecord(volume))
	}
	return records
}

// MapToCatalogRecord converts one volume. Multiple authors are joined with ", ".
func MapToCatalogRecord(volume Volume) domain.CatalogRecord {
	info := volume.VolumeInfo

	link := info.CanonicalVolumeLink
	if link == "" {
		link = info.InfoLink
	}

	return domain.CatalogRecord{
		ID:            volume.ID,
		Title:         strings.TrimSpace(info.Title),
		Author:        strings.Join(info.Authors, ", "),
		Publisher:     info.Publisher,
		CoverImageRef: coverURL(info.ImageLinks),
		ISBN:          extractISBN(info.IndustryIdentifiers),
		Description:   info.Description,
		LinkURL:       link,
	}
}

// extractISBN prefers ISBN_13 over ISBN_10
func extractISBN(ids []IndustryIdentifier) string {
	isbn10 := ""
	for _, id := range ids {
		switch id.Type {
		case "ISBN_13":
			return id.Identifier
		case "ISBN_10":
			if isbn10 == "" {
				isbn10 = id.Identifier
			}
		}
	}
	return isbn10
}

func coverURL(links *ImageLinks) string {
	if links == nil {
		return ""
	}
	ref := links.Thumbnail
	if ref == "" {
		ref = links.SmallThumbnail
	}
	// The API still hands out plain http thumbnail links.
	return strings.Replace(ref, "http://", "https://", 1)
}
