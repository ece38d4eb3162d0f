package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anantham/tarotgallery/models"
	"github.com/gofrs/uuid/v5"
)

const maxPathSegmentLen = 64

// UploadCards runs the full guarded upload pipeline: authorization, rate
// limiting, schema validation, and media-source policy, all before any
// network or storage effect; then asset resolution and storage writes in
// declared order. The response is not returned until every write for the
// request has completed.
func (s *Service) UploadCards(ctx context.Context, clientAddr, presentedToken string, req models.UploadRequest) ([]models.UploadedCard, error) {
	if err := s.authorizeUpload(presentedToken); err != nil {
		return nil, err
	}

	admitted, err := s.Limiter.Allow(ctx, clientAddr)
	if err != nil {
		// A broken counter store must not take the upload path down
		// with it; admit and log, matching single-instance behavior.
		log.Printf("Rate limiter store error for %s: %v", clientAddr, err)
	} else if !admitted {
		return nil, &Error{Code: CodeRateLimit}
	}

	if err := ValidateUploadRequest(req, s.uploadLimits()); err != nil {
		return nil, err
	}
	if err := s.checkMediaSources(req); err != nil {
		return nil, err
	}

	token, err := uuid.NewV4()
	if err != nil {
		return nil, newUpstreamError("could not generate request token", err)
	}
	requestToken := token.String()[:8]
	now := time.Now().UnixMilli()
	budget := NewByteBudget(s.Config.MaxTotalAssetBytes)

	uploaded := make([]models.UploadedCard, 0, len(req.Cards))
	for i, card := range req.Cards {
		result, err := s.uploadCard(ctx, i, card, requestToken, now, budget)
		if err != nil {
			// Assets already written stay where they are: per-request
			// unique paths make them orphaned, not corrupting.
			return nil, err
		}
		uploaded = append(uploaded, *result)
	}

	return uploaded, nil
}

// uploadCard resolves and stores one card's assets in fixed order:
// frames in declared order, then the animated asset, then the video.
func (s *Service) uploadCard(ctx context.Context, cardIndex int, card models.CardAsset, requestToken string, now int64, budget *ByteBudget) (*models.UploadedCard, error) {
	result := &models.UploadedCard{
		CardNumber: card.CardNumber,
		DeckType:   card.DeckType,
		Frames:     make([]string, 0, len(card.Frames)),
	}
	path := fmt.Sprintf("cards[%d]", cardIndex)

	for i, frame := range card.Frames {
		asset, err := s.Fetcher.ResolveEmbedded(frame, MediaImage, budget)
		if err != nil {
			return nil, withField(err, fmt.Sprintf("%s.frames[%d]", path, i))
		}
		key := assetKey(card, now, requestToken, fmt.Sprintf("frame-%02d.%s", i, asset.Extension))
		locator, err := s.storeAsset(ctx, key, asset)
		if err != nil {
			return nil, err
		}
		result.Frames = append(result.Frames, locator)
	}

	if card.GifUrl != "" {
		asset, err := s.resolveSlot(ctx, card.GifUrl, MediaImage, budget)
		if err != nil {
			return nil, withField(err, path+".gifUrl")
		}
		key := assetKey(card, now, requestToken, "animated."+asset.Extension)
		if result.GifUrl, err = s.storeAsset(ctx, key, asset); err != nil {
			return nil, err
		}
	}

	if card.VideoUrl != "" {
		asset, err := s.resolveSlot(ctx, card.VideoUrl, MediaVideo, budget)
		if err != nil {
			return nil, withField(err, path+".videoUrl")
		}
		key := assetKey(card, now, requestToken, "video."+asset.Extension)
		if result.VideoUrl, err = s.storeAsset(ctx, key, asset); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Service) resolveSlot(ctx context.Context, source string, want MediaCategory, budget *ByteBudget) (*ResolvedAsset, error) {
	if isEmbeddedAsset(source) {
		return s.Fetcher.ResolveEmbedded(source, want, budget)
	}
	return s.Fetcher.FetchRemote(ctx, source, want, budget)
}

func (s *Service) storeAsset(ctx context.Context, key string, asset *ResolvedAsset) (string, error) {
	if err := s.Store.Put(ctx, key, asset.Data, asset.ContentType); err != nil {
		return "", newUpstreamError("storage write failed", err)
	}
	return strings.TrimSuffix(s.Config.PublicBaseURL, "/") + "/" + key, nil
}

// assetKey derives a collision-free storage path. Every variable segment
// is sanitized to [a-z0-9-_] and length-bounded; the timestamp plus the
// per-request token guarantee no two requests share a prefix.
func assetKey(card models.CardAsset, now int64, requestToken, filename string) string {
	return fmt.Sprintf("decks/%s/%s/card-%02d/%d-%s/%s",
		sanitizeSegment(card.DeckId),
		sanitizeSegment(card.DeckType),
		card.CardNumber,
		now,
		requestToken,
		filename,
	)
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
		if b.Len() >= maxPathSegmentLen {
			break
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	return out
}

// withField attaches a field path to a typed error that was produced
// below the request layer, leaving other error kinds untouched.
func withField(err error, field string) error {
	if appErr, ok := err.(*Error); ok && appErr.Code == CodeValidation && appErr.Field == "" {
		appErr.Field = field
	}
	return err
}
