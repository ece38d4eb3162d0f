package service_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/anantham/tarotgallery/service"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

// makeProofArchive builds a minimal valid proof archive: version 1 with
// one signed delegation block, base64 over CBOR.
func makeProofArchive(t *testing.T, space string) string {
	t.Helper()
	archive := map[string]any{
		"v": 1,
		"delegations": []map[string]any{
			{
				"iss":  "did:key:zOperator",
				"aud":  "did:key:zMaster",
				"with": space,
				"can":  []string{"store/*", "upload/*"},
				"exp":  time.Now().Add(24 * time.Hour).Unix(),
				"sig":  []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
	}
	raw, err := cbor.Marshal(archive)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestNormalizeMasterKey_PlainBase64(t *testing.T) {
	seed := testSeed()
	key, canonical, err := service.NormalizeMasterKey(base64.StdEncoding.EncodeToString(seed))
	require.NoError(t, err)

	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)
	assert.True(t, canonical[0] == 'M', "canonical form must carry the multibase prefix")

	// The canonical form round-trips through normalization unchanged.
	key2, canonical2, err := service.NormalizeMasterKey(canonical)
	require.NoError(t, err)
	assert.Equal(t, key, key2)
	assert.Equal(t, canonical, canonical2)
}

func TestNormalizeMasterKey_Base64URL(t *testing.T) {
	seed := testSeed()
	key, _, err := service.NormalizeMasterKey(base64.RawURLEncoding.EncodeToString(seed))
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)
}

func TestNormalizeMasterKey_WrongLength(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Too Short", base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"Too Long", base64.StdEncoding.EncodeToString(make([]byte, 64))},
		{"Off By One", base64.StdEncoding.EncodeToString(make([]byte, 31))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, _, err := service.NormalizeMasterKey(tc.raw)
			assert.Nil(t, key, "a wrong-length key must never be truncated or padded into a key")

			var keyErr *service.KeyFormatError
			require.ErrorAs(t, err, &keyErr)
			assert.NotEmpty(t, keyErr.Attempted)
		})
	}
}

func TestNormalizeMasterKey_Garbage(t *testing.T) {
	key, _, err := service.NormalizeMasterKey("!!! not a key !!!")
	assert.Nil(t, key)

	var keyErr *service.KeyFormatError
	require.ErrorAs(t, err, &keyErr)
	// The error enumerates every form that was tried.
	assert.GreaterOrEqual(t, len(keyErr.Attempted), 3)
}

func TestParseProofArchive(t *testing.T) {
	space := "did:key:zSpace"

	t.Run("Valid", func(t *testing.T) {
		blocks, err := service.ParseProofArchive(makeProofArchive(t, space))
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, space, blocks[0].Resource)
		assert.Equal(t, "did:key:zMaster", blocks[0].Audience)
	})

	t.Run("Not Base64", func(t *testing.T) {
		_, err := service.ParseProofArchive("%%%%")
		var proofErr *service.ProofFormatError
		require.ErrorAs(t, err, &proofErr)
	})

	t.Run("Not CBOR", func(t *testing.T) {
		_, err := service.ParseProofArchive(base64.StdEncoding.EncodeToString([]byte("plain text")))
		var proofErr *service.ProofFormatError
		require.ErrorAs(t, err, &proofErr)
	})

	t.Run("Empty Archive", func(t *testing.T) {
		raw, err := cbor.Marshal(map[string]any{"v": 1, "delegations": []map[string]any{}})
		require.NoError(t, err)
		_, err = service.ParseProofArchive(base64.StdEncoding.EncodeToString(raw))
		var proofErr *service.ProofFormatError
		require.ErrorAs(t, err, &proofErr)
		assert.Contains(t, proofErr.Error(), "no delegations")
	})

	t.Run("Unsupported Version", func(t *testing.T) {
		raw, err := cbor.Marshal(map[string]any{"v": 9, "delegations": []map[string]any{}})
		require.NoError(t, err)
		_, err = service.ParseProofArchive(base64.StdEncoding.EncodeToString(raw))
		var proofErr *service.ProofFormatError
		require.ErrorAs(t, err, &proofErr)
	})
}

func TestLoadMasterIdentity(t *testing.T) {
	seed := testSeed()
	keyB64 := base64.StdEncoding.EncodeToString(seed)
	proof := makeProofArchive(t, "did:key:zSpace")

	t.Run("Valid", func(t *testing.T) {
		identity, err := service.LoadMasterIdentity(keyB64, proof, "did:key:zSpace")
		require.NoError(t, err)
		assert.Equal(t, "did:key:zSpace", identity.SpaceDID)
		assert.True(t, len(identity.DID) > len("did:key:z"))
		assert.Equal(t, "did:key:z", identity.DID[:len("did:key:z")])
	})

	t.Run("Missing Key", func(t *testing.T) {
		_, err := service.LoadMasterIdentity("", proof, "did:key:zSpace")
		assert.Error(t, err)
	})

	t.Run("Missing Proof", func(t *testing.T) {
		_, err := service.LoadMasterIdentity(keyB64, "", "did:key:zSpace")
		assert.Error(t, err)
	})

	t.Run("Missing Space", func(t *testing.T) {
		_, err := service.LoadMasterIdentity(keyB64, proof, "")
		assert.Error(t, err)
	})
}
