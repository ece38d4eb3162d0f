package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anantham/tarotgallery/api"
	"github.com/anantham/tarotgallery/ratelimit"
	ratelimitredis "github.com/anantham/tarotgallery/ratelimit/redis"
	"github.com/anantham/tarotgallery/registry"
	registryredis "github.com/anantham/tarotgallery/registry/redis"
	"github.com/anantham/tarotgallery/service"
	s3store "github.com/anantham/tarotgallery/store/s3"
)

func main() {
	ctx := context.Background()
	devMode := os.Getenv("DEV_MODE") == "true"

	blobStore, err := s3store.NewS3BlobStore(
		ctx,
		os.Getenv("STORAGE_ENDPOINT"),
		os.Getenv("STORAGE_ACCESS_KEY"),
		os.Getenv("STORAGE_SECRET_KEY"),
		os.Getenv("STORAGE_BUCKET"),
	)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	shutdownCtx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	redisEndpoint := os.Getenv("REDIS_ENDPOINT")

	var galleryRegistry registry.GalleryRegistry
	if redisEndpoint != "" {
		galleryRegistry, err = registryredis.NewRedisGalleryRegistry(ctx, devMode, redisEndpoint)
		if err != nil {
			log.Fatalf("Failed to create redis gallery registry: %v", err)
		}
	} else if devMode {
		log.Printf("REDIS_ENDPOINT not set, using in-memory gallery registry")
		galleryRegistry = registry.NewMemoryGalleryRegistry()
	} else {
		log.Fatalf("REDIS_ENDPOINT is required outside dev mode")
	}

	var counterStore ratelimit.CounterStore
	if os.Getenv("RATE_LIMIT_STORE") == "redis" && redisEndpoint != "" {
		counterStore, err = ratelimitredis.NewRedisCounterStore(ctx, devMode, redisEndpoint)
		if err != nil {
			log.Fatalf("Failed to create redis rate-limit store: %v", err)
		}
	} else {
		memStore := ratelimit.NewMemoryCounterStore()
		go memStore.Run(shutdownCtx)
		counterStore = memStore
	}

	cfg := service.Config{
		MasterKey:     os.Getenv("MASTER_KEY"),
		MasterProof:   os.Getenv("MASTER_PROOF"),
		SpaceDID:      os.Getenv("SPACE_DID"),
		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),
		UploadToken:   os.Getenv("UPLOAD_TOKEN"),

		MaxCardsPerRequest: getenvInt("MAX_CARDS_PER_REQUEST"),
		MaxURLLength:       getenvInt("MAX_URL_LENGTH"),
		MaxAssetBytes:      getenvInt64("MAX_ASSET_BYTES"),
		MaxTotalAssetBytes: getenvInt64("MAX_TOTAL_ASSET_BYTES"),
		FetchTimeout:       getenvSeconds("FETCH_TIMEOUT_SECONDS"),
		RateLimitWindow:    getenvSeconds("RATE_LIMIT_WINDOW_SECONDS"),
		RateLimitMax:       getenvInt("RATE_LIMIT_MAX"),
		AllowedMediaHosts:  getenvList("ALLOWED_MEDIA_HOSTS"),
	}

	galleryAPI := api.NewGalleryAPI(blobStore, galleryRegistry, counterStore, cfg)

	mux := http.NewServeMux()
	galleryAPI.RegisterRoutes(mux)

	hostPort := "8080"
	if p := os.Getenv("HOST_PORT"); p != "" {
		hostPort = p
	}
	log.Printf("Starting server on host port: %s\n", hostPort)
	log.Fatal(http.ListenAndServe(":"+hostPort, mux))
}

func getenvInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return v
}

func getenvInt64(name string) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("Invalid %s: %v", name, err)
	}
	return v
}

func getenvSeconds(name string) time.Duration {
	return time.Duration(getenvInt(name)) * time.Second
}

func getenvList(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
