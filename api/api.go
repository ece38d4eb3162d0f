package api

import (
	"net/http"

	"github.com/anantham/tarotgallery/api/rest"
	"github.com/anantham/tarotgallery/ratelimit"
	"github.com/anantham/tarotgallery/registry"
	"github.com/anantham/tarotgallery/service"
	"github.com/anantham/tarotgallery/store"
)

type GalleryAPI struct {
	restHandler *rest.Handler
}

func NewGalleryAPI(
	blobStore store.BlobStore,
	galleryRegistry registry.GalleryRegistry,
	counterStore ratelimit.CounterStore,
	cfg service.Config,
) *GalleryAPI {
	svc := service.NewService(blobStore, galleryRegistry, counterStore, cfg)
	return &GalleryAPI{
		restHandler: rest.NewHandler(svc),
	}
}

func (galleryAPI *GalleryAPI) RegisterRoutes(mux *http.ServeMux) {
	// Health check endpoint (no auth required)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/api/delegation", galleryAPI.restHandler.HandleDelegation)
	mux.HandleFunc("/api/upload", galleryAPI.restHandler.HandleUpload)
	mux.HandleFunc("/api/galleries", galleryAPI.restHandler.HandleGalleries)
	mux.HandleFunc("/api/galleries/", galleryAPI.restHandler.HandleGallery)
}
