package rest

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anantham/tarotgallery/ratelimit"
	"github.com/anantham/tarotgallery/registry"
	"github.com/anantham/tarotgallery/service"
	storemocks "github.com/anantham/tarotgallery/store/mocks"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpaceDID = "did:key:zHandlerTestSpace"

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}

	archive := map[string]any{
		"v": 1,
		"delegations": []map[string]any{
			{
				"iss":  "did:key:zOperator",
				"aud":  "did:key:zMaster",
				"with": testSpaceDID,
				"can":  []string{"store/*", "upload/*"},
				"exp":  time.Now().Add(24 * time.Hour).Unix(),
				"sig":  []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
	}
	rawArchive, err := cbor.Marshal(archive)
	require.NoError(t, err)

	svc := service.NewService(
		&storemocks.MockBlobStore{},
		registry.NewMemoryGalleryRegistry(),
		ratelimit.NewMemoryCounterStore(),
		service.Config{
			MasterKey:     base64.StdEncoding.EncodeToString(seed),
			MasterProof:   base64.StdEncoding.EncodeToString(rawArchive),
			SpaceDID:      testSpaceDID,
			PublicBaseURL: "https://cdn.example.com",
		},
	)
	return NewHandler(svc)
}

func TestHandleDelegation(t *testing.T) {
	handler := newTestHandler(t)

	body := bytes.NewBufferString(`{"clientIdentifier":"did:key:z6MkClientBrowser"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/delegation", body)
	rec := httptest.NewRecorder()

	handler.HandleDelegation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp delegationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Delegation)
	assert.Equal(t, testSpaceDID, resp.AuthorizedResourceId)
	assert.Greater(t, resp.ExpiresAt, time.Now().UnixMilli())
}

func TestHandleDelegation_BadRequests(t *testing.T) {
	handler := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"clientIdentifier":`},
		{"missing identifier", `{}`},
		{"wrong prefix", `{"clientIdentifier":"mailto:alice@example.com"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/delegation", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			handler.HandleDelegation(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleDelegation_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/delegation", nil)
	rec := httptest.NewRecorder()

	handler.HandleDelegation(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleUpload_UnknownFieldRejected(t *testing.T) {
	handler := newTestHandler(t)

	body := strings.NewReader(`{"cards":[],"surprise":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	rec := httptest.NewRecorder()

	handler.HandleUpload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "invalid request body")
}

func TestHandleGalleries_RegisterAndList(t *testing.T) {
	handler := newTestHandler(t)

	body := strings.NewReader(`{"locator":"bafy-handler-test","author":"ada","cardCount":3,"deckTypes":["rider-waite"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/galleries", body)
	rec := httptest.NewRecorder()

	handler.HandleGalleries(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var reg registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.True(t, reg.Success)
	assert.Equal(t, "bafy-handler-test", reg.Locator)
	assert.NotZero(t, reg.Timestamp)

	req = httptest.NewRequest(http.MethodGet, "/api/galleries", nil)
	rec = httptest.NewRecorder()

	handler.HandleGalleries(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, int64(1), list.Total)
	assert.False(t, list.HasMore)
	require.Len(t, list.Galleries, 1)
	assert.Equal(t, "bafy-handler-test", list.Galleries[0].Locator)
	assert.Equal(t, "ada", list.Galleries[0].Author)
}

func TestHandleGalleries_BadPagination(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/galleries?limit=abc", nil)
	rec := httptest.NewRecorder()

	handler.HandleGalleries(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "limit", resp.Field)

	req = httptest.NewRequest(http.MethodGet, "/api/galleries?offset=1.5", nil)
	rec = httptest.NewRecorder()

	handler.HandleGalleries(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGallery_NotFound(t *testing.T) {
	handler := newTestHandler(t)

	for _, path := range []string{
		"/api/galleries/no-such-locator",
		"/api/galleries/",
		"/api/galleries/nested/path",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		handler.HandleGallery(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, "path %s", path)
	}
}

func TestHandleGallery_Found(t *testing.T) {
	handler := newTestHandler(t)

	_, err := handler.Service.RegisterGallery(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "bafy-found", "", 1, []string{"thoth"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/galleries/bafy-found", nil)
	rec := httptest.NewRecorder()

	handler.HandleGallery(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp galleryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bafy-found", resp.Locator)
	assert.Contains(t, resp.ResolvedUrl, "bafy-found")
}

func TestUploadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Empty(t, uploadToken(req))

	req.Header.Set("X-Upload-Token", "fallback-token")
	assert.Equal(t, "fallback-token", uploadToken(req))

	req.Header.Set("Authorization", "Bearer primary-token")
	assert.Equal(t, "primary-token", uploadToken(req))

	// A non-bearer Authorization header falls through to the dedicated one.
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "fallback-token", uploadToken(req))
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.9:51442"
	assert.Equal(t, "203.0.113.9", clientAddr(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", clientAddr(req))
}
