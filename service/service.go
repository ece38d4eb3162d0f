package service

import (
	"crypto/subtle"
	"log"
	"time"

	"github.com/anantham/tarotgallery/ratelimit"
	"github.com/anantham/tarotgallery/registry"
	"github.com/anantham/tarotgallery/store"
)

// Config carries everything the service needs from the environment.
// Zero-valued tunables fall back to the defaults below.
type Config struct {
	MasterKey     string
	MasterProof   string
	SpaceDID      string
	PublicBaseURL string
	UploadToken   string

	MaxCardsPerRequest int
	MaxURLLength       int
	MaxAssetBytes      int64
	MaxTotalAssetBytes int64
	FetchTimeout       time.Duration
	RateLimitWindow    time.Duration
	RateLimitMax       int
	AllowedMediaHosts  []string
}

const (
	defaultMaxCards        = 4
	defaultMaxURLLength    = 2048
	defaultMaxAssetBytes   = 10 << 20
	defaultMaxTotalBytes   = 18 << 20
	defaultFetchTimeout    = 15 * time.Second
	defaultRateLimitWindow = 60 * time.Second
	defaultRateLimitMax    = 15
)

func (c Config) withDefaults() Config {
	if c.MaxCardsPerRequest == 0 {
		c.MaxCardsPerRequest = defaultMaxCards
	}
	if c.MaxURLLength == 0 {
		c.MaxURLLength = defaultMaxURLLength
	}
	if c.MaxAssetBytes == 0 {
		c.MaxAssetBytes = defaultMaxAssetBytes
	}
	if c.MaxTotalAssetBytes == 0 {
		c.MaxTotalAssetBytes = defaultMaxTotalBytes
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = defaultRateLimitWindow
	}
	if c.RateLimitMax == 0 {
		c.RateLimitMax = defaultRateLimitMax
	}
	return c
}

type Service struct {
	Store    store.BlobStore
	Registry registry.GalleryRegistry
	Limiter  *ratelimit.Limiter
	Fetcher  *MediaFetcher
	Config   Config

	identity    *MasterIdentity
	identityErr error
}

// NewService wires the service. A master identity that fails to load
// does not prevent startup: uploads and the registry keep working, and
// delegation minting reports the configuration error per request.
func NewService(
	blobStore store.BlobStore,
	galleryRegistry registry.GalleryRegistry,
	counterStore ratelimit.CounterStore,
	cfg Config,
) *Service {
	cfg = cfg.withDefaults()

	identity, err := LoadMasterIdentity(cfg.MasterKey, cfg.MasterProof, cfg.SpaceDID)
	if err != nil {
		log.Printf("Master identity unavailable, delegation minting disabled: %v", err)
	}

	return &Service{
		Store:       blobStore,
		Registry:    galleryRegistry,
		Limiter:     ratelimit.New(counterStore, cfg.RateLimitMax, cfg.RateLimitWindow),
		Fetcher:     NewMediaFetcher(cfg.FetchTimeout, cfg.MaxAssetBytes, cfg.AllowedMediaHosts),
		Config:      cfg,
		identity:    identity,
		identityErr: err,
	}
}

// Identity exposes the loaded master identity, or nil when bootstrap
// failed. The key never leaves the process.
func (s *Service) Identity() *MasterIdentity {
	return s.identity
}

// authorizeUpload enforces the optional shared upload token. An empty
// configured token leaves the endpoint open; that is the operator's
// documented trust-boundary choice.
func (s *Service) authorizeUpload(presented string) error {
	if s.Config.UploadToken == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.Config.UploadToken)) != 1 {
		return &Error{Code: CodeAuthorization}
	}
	return nil
}

func (s *Service) uploadLimits() UploadLimits {
	return UploadLimits{
		MaxCards:     s.Config.MaxCardsPerRequest,
		MaxURLLength: s.Config.MaxURLLength,
	}
}
