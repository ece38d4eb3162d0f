package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anantham/tarotgallery/models"
	"github.com/anantham/tarotgallery/registry"
)

const (
	minListLimit     = 1
	maxListLimit     = 100
	defaultListLimit = 50
)

// ListResult is one page of the gallery index in descending-timestamp
// order.
type ListResult struct {
	Galleries []models.GalleryEntry
	Total     int64
	HasMore   bool
}

// RegisterGallery records a published gallery. The registry performs the
// metadata write before the index insert, so a crash between the two can
// leave unlisted metadata but never an index entry with no metadata.
func (s *Service) RegisterGallery(ctx context.Context, locator, author string, cardCount int, deckTypes []string) (models.GalleryEntry, error) {
	if err := validateRegistration(locator, author, cardCount, deckTypes); err != nil {
		return models.GalleryEntry{}, err
	}

	entry := models.GalleryEntry{
		Locator:   locator,
		Author:    author,
		CardCount: cardCount,
		DeckTypes: deckTypes,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.Registry.Add(ctx, entry); err != nil {
		return models.GalleryEntry{}, newUpstreamError("gallery registration failed", err)
	}
	return entry, nil
}

// ListGalleries serves one page of entries, newest first. limit and
// offset of -1 select the defaults.
func (s *Service) ListGalleries(ctx context.Context, limit, offset int) (*ListResult, error) {
	if limit == -1 {
		limit = defaultListLimit
	}
	if offset == -1 {
		offset = 0
	}
	if limit < minListLimit || limit > maxListLimit {
		return nil, newValidationErrorf("limit", "must be between %d and %d", minListLimit, maxListLimit)
	}
	if offset < 0 {
		return nil, newValidationError("offset", "must not be negative")
	}

	entries, total, err := s.Registry.List(ctx, offset, limit)
	if err != nil {
		return nil, newUpstreamError("gallery listing failed", err)
	}

	return &ListResult{
		Galleries: entries,
		Total:     total,
		HasMore:   int64(offset+len(entries)) < total,
	}, nil
}

// GetGallery resolves one locator's metadata. A missing locator is a
// not-found condition, not a failure.
func (s *Service) GetGallery(ctx context.Context, locator string) (models.GalleryEntry, string, error) {
	entry, err := s.Registry.Get(ctx, locator)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return models.GalleryEntry{}, "", &Error{Code: CodeNotFound, Message: fmt.Sprintf("gallery %q does not exist", locator)}
		}
		return models.GalleryEntry{}, "", newUpstreamError("gallery lookup failed", err)
	}

	resolved := strings.TrimSuffix(s.Config.PublicBaseURL, "/") + "/" + entry.Locator
	return entry, resolved, nil
}
