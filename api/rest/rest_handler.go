package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/anantham/tarotgallery/models"
	"github.com/anantham/tarotgallery/service"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type delegationRequest struct {
	ClientIdentifier string `json:"clientIdentifier"`
}

type delegationResponse struct {
	Delegation           string `json:"delegation"`
	AuthorizedResourceId string `json:"authorizedResourceId"`
	ExpiresAt            int64  `json:"expiresAt"`
}

func (h *Handler) HandleDelegation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req delegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &service.Error{Code: service.CodeValidation, Message: "invalid request body"})
		return
	}

	grant, err := h.Service.MintDelegation(req.ClientIdentifier)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sendResponse(w, delegationResponse{
		Delegation:           grant.Delegation,
		AuthorizedResourceId: grant.AuthorizedResourceId,
		ExpiresAt:            grant.ExpiresAt,
	})
}

type uploadResponse struct {
	Uploaded []models.UploadedCard `json:"uploaded"`
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Embedded assets are base64, so allow some headroom over the
	// resolved-bytes ceiling before rejecting the body outright.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.Service.Config.MaxTotalAssetBytes)

	var req models.UploadRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, &service.Error{Code: service.CodeValidation, Message: "invalid request body: " + err.Error()})
		return
	}

	uploaded, err := h.Service.UploadCards(r.Context(), clientAddr(r), uploadToken(r), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sendResponse(w, uploadResponse{Uploaded: uploaded})
}

type registerRequest struct {
	Locator   string   `json:"locator"`
	Author    string   `json:"author,omitempty"`
	CardCount int      `json:"cardCount"`
	DeckTypes []string `json:"deckTypes"`
}

type registerResponse struct {
	Success   bool   `json:"success"`
	Locator   string `json:"locator"`
	Timestamp int64  `json:"timestamp"`
}

type listResponse struct {
	Galleries []models.GalleryEntry `json:"galleries"`
	Total     int64                 `json:"total"`
	HasMore   bool                  `json:"hasMore"`
}

func (h *Handler) HandleGalleries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegisterGallery(w, r)

	case http.MethodGet:
		h.handleListGalleries(w, r)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegisterGallery(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &service.Error{Code: service.CodeValidation, Message: "invalid request body"})
		return
	}

	entry, err := h.Service.RegisterGallery(r.Context(), req.Locator, req.Author, req.CardCount, req.DeckTypes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sendResponse(w, registerResponse{
		Success:   true,
		Locator:   entry.Locator,
		Timestamp: entry.Timestamp,
	})
}

func (h *Handler) handleListGalleries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, &service.Error{Code: service.CodeValidation, Field: "limit", Message: "must be an integer"})
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeError(w, &service.Error{Code: service.CodeValidation, Field: "offset", Message: "must be an integer"})
		return
	}

	result, err := h.Service.ListGalleries(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sendResponse(w, listResponse{
		Galleries: result.Galleries,
		Total:     result.Total,
		HasMore:   result.HasMore,
	})
}

type galleryResponse struct {
	Locator     string              `json:"locator"`
	ResolvedUrl string              `json:"resolvedUrl"`
	Metadata    models.GalleryEntry `json:"metadata"`
}

func (h *Handler) HandleGallery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	locator := strings.TrimPrefix(r.URL.Path, "/api/galleries/")
	if locator == "" || strings.Contains(locator, "/") {
		h.writeError(w, &service.Error{Code: service.CodeNotFound})
		return
	}

	entry, resolvedUrl, err := h.Service.GetGallery(r.Context(), locator)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.sendResponse(w, galleryResponse{
		Locator:     entry.Locator,
		ResolvedUrl: resolvedUrl,
		Metadata:    entry,
	})
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError is the single boundary between typed service errors and
// HTTP. Untyped failures become a generic 500; their detail is logged,
// never echoed to the caller.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *service.Error
	if !errors.As(err, &appErr) {
		log.Printf("Unhandled error: %v", err)
		h.writeJSONError(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	status := appErr.HTTPStatus()
	if status >= 500 {
		log.Printf("Request failed (%s): %v", appErr.Code, appErr)
	}
	h.writeJSONError(w, status, errorResponse{Error: appErr.PublicMessage(), Field: appErr.Field})
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// uploadToken reads the shared upload token from the Authorization
// bearer header, falling back to the dedicated X-Upload-Token header.
func uploadToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			return strings.TrimPrefix(auth, prefix)
		}
	}
	return r.Header.Get("X-Upload-Token")
}

// clientAddr is the rate-limit key: the first forwarded address when a
// proxy sets one, otherwise the connection's remote host.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// queryInt parses an optional integer query parameter, returning -1
// when absent so the service can apply its default.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return -1, nil
	}
	return strconv.Atoi(raw)
}
