package service_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/anantham/tarotgallery/ratelimit"
	"github.com/anantham/tarotgallery/registry"
	"github.com/anantham/tarotgallery/service"
	storemocks "github.com/anantham/tarotgallery/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpaceDID = "did:key:zTestSpace"

func testConfig(t *testing.T) service.Config {
	t.Helper()
	return service.Config{
		MasterKey:     base64.StdEncoding.EncodeToString(testSeed()),
		MasterProof:   makeProofArchive(t, testSpaceDID),
		SpaceDID:      testSpaceDID,
		PublicBaseURL: "https://cdn.example.com",
	}
}

func newTestService(t *testing.T, cfg service.Config) *service.Service {
	t.Helper()
	return service.NewService(
		&storemocks.MockBlobStore{},
		registry.NewMemoryGalleryRegistry(),
		ratelimit.NewMemoryCounterStore(),
		cfg,
	)
}

func TestMintDelegation(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	clientDID := "did:key:z6MkClientBrowser"

	before := time.Now()
	grant, err := svc.MintDelegation(clientDID)
	require.NoError(t, err)
	require.NotNil(t, grant)

	assert.Equal(t, testSpaceDID, grant.AuthorizedResourceId)

	// Expiry is 24h out and actually reported.
	wantExpiry := before.Add(24 * time.Hour).UnixMilli()
	assert.InDelta(t, wantExpiry, grant.ExpiresAt, float64((2 * time.Minute).Milliseconds()))

	payload, err := service.VerifyDelegation(grant.Delegation)
	require.NoError(t, err)

	assert.Equal(t, svc.Identity().DID, payload.Issuer)
	assert.Equal(t, clientDID, payload.Audience)
	assert.Equal(t, testSpaceDID, payload.Subject)
	assert.NotEmpty(t, payload.Proof)

	// Exactly the two non-destructive upload actions, nothing else.
	require.Len(t, payload.Capabilities, 2)
	assert.Equal(t, service.CapabilityStoreAdd, payload.Capabilities[0].Can)
	assert.Equal(t, service.CapabilityUploadAdd, payload.Capabilities[1].Can)
	for _, capability := range payload.Capabilities {
		assert.Equal(t, testSpaceDID, capability.With)
	}
}

func TestMintDelegation_UniquePerRequest(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	grantA, err := svc.MintDelegation("did:key:zSameClient")
	require.NoError(t, err)
	grantB, err := svc.MintDelegation("did:key:zSameClient")
	require.NoError(t, err)

	// The nonce makes every minted token distinct.
	assert.NotEqual(t, grantA.Delegation, grantB.Delegation)
}

func TestMintDelegation_BadIdentifier(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	tests := []string{"", "did:web:example.com", "key:z6Mk", "z6MkClientBrowser"}
	for _, id := range tests {
		grant, err := svc.MintDelegation(id)
		assert.Nil(t, grant, "no partial delegation on error")

		var appErr *service.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, service.CodeValidation, appErr.Code)
		assert.Equal(t, "clientIdentifier", appErr.Field)
		assert.Equal(t, 400, appErr.HTTPStatus())
	}
}

func TestMintDelegation_MissingConfiguration(t *testing.T) {
	svc := newTestService(t, service.Config{})

	grant, err := svc.MintDelegation("did:key:z6MkClientBrowser")
	assert.Nil(t, grant)

	var appErr *service.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, service.CodeConfiguration, appErr.Code)
	assert.Equal(t, 500, appErr.HTTPStatus())
	assert.Contains(t, appErr.PublicMessage(), "not configured")
}

func TestMintDelegation_UnparsableCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.MasterKey = base64.StdEncoding.EncodeToString(make([]byte, 16))
	svc := newTestService(t, cfg)

	grant, err := svc.MintDelegation("did:key:z6MkClientBrowser")
	assert.Nil(t, grant)

	var appErr *service.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, service.CodeConfiguration, appErr.Code)
	assert.Contains(t, appErr.PublicMessage(), "regenerate")
}
