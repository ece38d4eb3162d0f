package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/anantham/tarotgallery/models"
)

const (
	minCardsPerRequest = 1
	minFramesPerCard   = 1
	maxFramesPerCard   = 12
	maxCardNumber      = 77 // 78 cards in a full tarot deck, zero-based
	maxAuthorLen       = 120
	maxModelNameLen    = 120
	maxDeckTypeLen     = 64
	maxDeckIdLen       = 64
	maxLocatorLen      = 256
	maxDeckTypes       = 8

	// Oldest acceptable createdAt: 2020-01-01T00:00:00Z in unix ms.
	minCreatedAtMillis = 1577836800000
	// Allowed clock skew ahead of the server for client timestamps.
	createdAtSkew = 10 * time.Minute
)

// UploadLimits carries the operator-tunable bounds used during schema
// validation. Fixed structural bounds (frame counts, ordinal ranges,
// string ceilings) are constants above.
type UploadLimits struct {
	MaxCards     int
	MaxURLLength int
}

// ValidateUploadRequest checks the request shape before any network or
// storage effect. The first violation is returned with its field path.
func ValidateUploadRequest(req models.UploadRequest, limits UploadLimits) error {
	if len(req.Cards) < minCardsPerRequest {
		return newValidationError("cards", "at least one card is required")
	}
	if len(req.Cards) > limits.MaxCards {
		return newValidationErrorf("cards", "at most %d cards per request", limits.MaxCards)
	}
	if len(req.Author) > maxAuthorLen {
		return newValidationErrorf("author", "must be at most %d characters", maxAuthorLen)
	}
	if len(req.Model) > maxModelNameLen {
		return newValidationErrorf("model", "must be at most %d characters", maxModelNameLen)
	}

	now := time.Now()
	for i, card := range req.Cards {
		path := fmt.Sprintf("cards[%d]", i)

		if card.CardNumber < 0 || card.CardNumber > maxCardNumber {
			return newValidationErrorf(path+".cardNumber", "must be between 0 and %d", maxCardNumber)
		}
		if card.DeckType == "" {
			return newValidationError(path+".deckType", "is required")
		}
		if len(card.DeckType) > maxDeckTypeLen {
			return newValidationErrorf(path+".deckType", "must be at most %d characters", maxDeckTypeLen)
		}
		if card.DeckId == "" {
			return newValidationError(path+".deckId", "is required")
		}
		if len(card.DeckId) > maxDeckIdLen {
			return newValidationErrorf(path+".deckId", "must be at most %d characters", maxDeckIdLen)
		}

		if len(card.Frames) < minFramesPerCard {
			return newValidationError(path+".frames", "at least one frame is required")
		}
		if len(card.Frames) > maxFramesPerCard {
			return newValidationErrorf(path+".frames", "at most %d frames per card", maxFramesPerCard)
		}
		for j, frame := range card.Frames {
			if !isEmbeddedAsset(frame) {
				return newValidationError(fmt.Sprintf("%s.frames[%d]", path, j), "frames must be embedded data URLs")
			}
		}

		// The URL-length ceiling only applies to remote references;
		// embedded data URLs are bounded by the per-asset byte ceiling
		// when they are decoded.
		if card.GifUrl != "" && !isEmbeddedAsset(card.GifUrl) && len(card.GifUrl) > limits.MaxURLLength {
			return newValidationErrorf(path+".gifUrl", "must be at most %d characters", limits.MaxURLLength)
		}
		if card.VideoUrl != "" && !isEmbeddedAsset(card.VideoUrl) && len(card.VideoUrl) > limits.MaxURLLength {
			return newValidationErrorf(path+".videoUrl", "must be at most %d characters", limits.MaxURLLength)
		}

		if card.CreatedAt != 0 {
			if card.CreatedAt < minCreatedAtMillis || card.CreatedAt > now.Add(createdAtSkew).UnixMilli() {
				return newValidationError(path+".createdAt", "timestamp is outside the accepted range")
			}
		}
	}

	return nil
}

func isEmbeddedAsset(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// checkMediaSources applies the media-source policy: frames are already
// embedded-only after schema validation; the gif and video slots may be
// remote, in which case the URL must pass SSRF policy now, before any
// fetch is attempted.
func (s *Service) checkMediaSources(req models.UploadRequest) error {
	for i, card := range req.Cards {
		path := fmt.Sprintf("cards[%d]", i)
		if card.GifUrl != "" && !isEmbeddedAsset(card.GifUrl) {
			if err := CheckRemoteMediaURL(card.GifUrl, s.Config.AllowedMediaHosts); err != nil {
				return newValidationError(path+".gifUrl", err.Error())
			}
		}
		if card.VideoUrl != "" && !isEmbeddedAsset(card.VideoUrl) {
			if err := CheckRemoteMediaURL(card.VideoUrl, s.Config.AllowedMediaHosts); err != nil {
				return newValidationError(path+".videoUrl", err.Error())
			}
		}
	}
	return nil
}

// validateRegistration checks a gallery registration request.
func validateRegistration(locator, author string, cardCount int, deckTypes []string) error {
	if locator == "" {
		return newValidationError("locator", "is required")
	}
	if len(locator) > maxLocatorLen {
		return newValidationErrorf("locator", "must be at most %d characters", maxLocatorLen)
	}
	if strings.ContainsAny(locator, "/ \t\n") {
		return newValidationError("locator", "must be a single opaque identifier")
	}
	if len(author) > maxAuthorLen {
		return newValidationErrorf("author", "must be at most %d characters", maxAuthorLen)
	}
	if cardCount < 1 || cardCount > maxCardNumber+1 {
		return newValidationErrorf("cardCount", "must be between 1 and %d", maxCardNumber+1)
	}
	if len(deckTypes) == 0 {
		return newValidationError("deckTypes", "at least one deck type is required")
	}
	if len(deckTypes) > maxDeckTypes {
		return newValidationErrorf("deckTypes", "at most %d deck types", maxDeckTypes)
	}
	for i, dt := range deckTypes {
		if dt == "" || len(dt) > maxDeckTypeLen {
			return newValidationErrorf(fmt.Sprintf("deckTypes[%d]", i), "must be 1-%d characters", maxDeckTypeLen)
		}
	}
	return nil
}
