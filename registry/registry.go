package registry

import (
	"context"
	"errors"

	"github.com/anantham/tarotgallery/models"
)

var ErrNotFound = errors.New("gallery does not exist")

// GalleryRegistry is the append-only index of published galleries.
// Add must write the per-locator metadata before the index member so a
// crash between the two never leaves an index entry with no metadata.
// List returns entries in descending-timestamp order along with the
// total index cardinality; members whose metadata is missing are
// silently dropped from the page.
type GalleryRegistry interface {
	Add(ctx context.Context, entry models.GalleryEntry) error
	List(ctx context.Context, offset, limit int) ([]models.GalleryEntry, int64, error)
	Get(ctx context.Context, locator string) (models.GalleryEntry, error)
}
