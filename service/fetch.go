package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MediaCategory is the coarse kind expected for an asset slot. Declared
// media types that disagree with the slot are a hard validation error.
type MediaCategory int

const (
	MediaImage MediaCategory = iota
	MediaVideo
)

func (c MediaCategory) String() string {
	if c == MediaVideo {
		return "video"
	}
	return "image"
}

var extensionByMediaType = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
	"video/mp4":  "mp4",
	"video/webm": "webm",
}

// Outbound remote fetches per second across the whole process, with a
// small burst. Keeps a hostile batch from turning the server into a
// fetch amplifier.
const (
	remoteFetchesPerSecond = 10
	remoteFetchBurst       = 20
)

// ByteBudget is the request-wide ceiling on resolved asset bytes. Every
// asset charges it under one lock, so concurrent resolution cannot race
// the ceiling check.
type ByteBudget struct {
	mu        sync.Mutex
	remaining int64
}

func NewByteBudget(limit int64) *ByteBudget {
	return &ByteBudget{remaining: limit}
}

// Charge consumes n bytes from the budget. Once the budget is exhausted
// every later charge fails, aborting the remaining assets.
func (b *ByteBudget) Charge(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		b.remaining = 0
		return newPayloadTooLargeError("combined media size exceeds the request ceiling")
	}
	b.remaining -= n
	return nil
}

// Fits reports whether n bytes could still be charged, without
// consuming them. Used to reject a remote asset on its declared size
// before any bytes are downloaded.
func (b *ByteBudget) Fits(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		return newPayloadTooLargeError("combined media size exceeds the request ceiling")
	}
	return nil
}

// ResolvedAsset is a bounded byte buffer ready for the storage relay.
type ResolvedAsset struct {
	Data        []byte
	ContentType string
	Extension   string
}

// MediaFetcher resolves embedded and remote assets into bounded buffers.
type MediaFetcher struct {
	client        *http.Client
	limiter       *rate.Limiter
	maxAssetBytes int64
	allowedHosts  []string
}

func NewMediaFetcher(timeout time.Duration, maxAssetBytes int64, allowedHosts []string) *MediaFetcher {
	return &MediaFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:       rate.NewLimiter(rate.Limit(remoteFetchesPerSecond), remoteFetchBurst),
		maxAssetBytes: maxAssetBytes,
		allowedHosts:  allowedHosts,
	}
}

// ResolveEmbedded decodes a data URL, enforcing the per-asset ceiling,
// the request budget, and the expected media category for the slot.
func (f *MediaFetcher) ResolveEmbedded(dataURL string, want MediaCategory, budget *ByteBudget) (*ResolvedAsset, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !isEmbeddedAsset(dataURL) || !ok {
		return nil, newValidationError("", "not an embedded data URL")
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, newValidationError("", "embedded assets must be base64-encoded")
	}

	ext, err := extensionFor(mediaType, want)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, newValidationError("", "embedded payload is not valid base64")
	}
	if len(data) == 0 {
		return nil, newValidationError("", "embedded payload is empty")
	}
	if int64(len(data)) > f.maxAssetBytes {
		return nil, newPayloadTooLargeError(fmt.Sprintf("asset is %d bytes, limit is %d", len(data), f.maxAssetBytes))
	}
	if err := budget.Charge(int64(len(data))); err != nil {
		return nil, err
	}

	return &ResolvedAsset{Data: data, ContentType: mediaType, Extension: ext}, nil
}

// FetchRemote downloads a remote asset. The URL is re-validated against
// SSRF policy even if the guard already checked it, redirects are never
// followed, and both the declared and actual sizes are bounded.
func (f *MediaFetcher) FetchRemote(ctx context.Context, rawURL string, want MediaCategory, budget *ByteBudget) (*ResolvedAsset, error) {
	if err := CheckRemoteMediaURL(rawURL, f.allowedHosts); err != nil {
		return nil, newValidationError("", err.Error())
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, newUpstreamError("fetch canceled while rate limited", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newValidationError("", "url could not be requested")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Code: CodeUpstreamTimeout, Message: "media fetch timed out", Err: err}
		}
		return nil, newUpstreamError("media fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newUpstreamError(fmt.Sprintf("media host returned status %d", resp.StatusCode), nil)
	}
	// Reject on the response headers before touching the body: wrong
	// media category, declared size over the per-asset ceiling, or
	// declared size that no longer fits the request budget.
	mediaType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	mediaType = strings.TrimSpace(mediaType)
	ext, err := extensionFor(mediaType, want)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength > f.maxAssetBytes {
		return nil, newPayloadTooLargeError(fmt.Sprintf("declared size %d exceeds the %d byte limit", resp.ContentLength, f.maxAssetBytes))
	}
	if resp.ContentLength > 0 {
		if err := budget.Fits(resp.ContentLength); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxAssetBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Code: CodeUpstreamTimeout, Message: "media fetch timed out", Err: err}
		}
		return nil, newUpstreamError("reading media body failed", err)
	}
	if len(data) == 0 {
		return nil, newUpstreamError("media host returned an empty body", nil)
	}
	if int64(len(data)) > f.maxAssetBytes {
		return nil, newPayloadTooLargeError(fmt.Sprintf("asset exceeds the %d byte limit", f.maxAssetBytes))
	}
	if err := budget.Charge(int64(len(data))); err != nil {
		return nil, err
	}

	return &ResolvedAsset{Data: data, ContentType: mediaType, Extension: ext}, nil
}

func extensionFor(mediaType string, want MediaCategory) (string, error) {
	ext, ok := extensionByMediaType[mediaType]
	if !ok {
		return "", newValidationErrorf("", "unsupported media type %q", mediaType)
	}
	category := MediaImage
	if strings.HasPrefix(mediaType, "video/") {
		category = MediaVideo
	}
	if category != want {
		return "", newValidationErrorf("", "expected %s media, got %q", want, mediaType)
	}
	return ext, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
