package service

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	// ClientIdentifierPrefix is the identity scheme every client
	// identifier must carry.
	ClientIdentifierPrefix = "did:key:"

	// The two non-destructive actions a delegation grants. Space
	// administration and removal capabilities are deliberately excluded.
	CapabilityStoreAdd  = "store/add"
	CapabilityUploadAdd = "upload/add"

	delegationTTL           = 24 * time.Hour
	maxClientIdentifierLen  = 512
	delegationSignatureAlgo = "EdDSA"
)

// delegationEncMode uses Core Deterministic Encoding so the signed
// payload bytes are reproducible for any verifier.
var delegationEncMode cbor.EncMode

func init() {
	var err error
	delegationEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("service: CBOR encoder initialization failed: " + err.Error())
	}
}

// Capability is one action × resource pair inside a delegation.
type Capability struct {
	Can  string `cbor:"can"`
	With string `cbor:"with"`
}

// DelegationPayload is the signed body of a minted delegation.
type DelegationPayload struct {
	Issuer       string       `cbor:"iss"`
	Audience     string       `cbor:"aud"`
	Subject      string       `cbor:"sub"`
	Capabilities []Capability `cbor:"att"`
	Expiry       int64        `cbor:"exp"`
	IssuedAt     int64        `cbor:"iat"`
	Nonce        []byte       `cbor:"nnc"`
	Proof        []ProofBlock `cbor:"prf"`
}

type delegationEnvelope struct {
	Payload   []byte `cbor:"payload"`
	Signature []byte `cbor:"sig"`
	Algorithm string `cbor:"alg"`
}

// DelegationGrant is the successful result of minting: the transport-
// encoded delegation, the space it authorizes, and when it expires.
type DelegationGrant struct {
	Delegation           string
	AuthorizedResourceId string
	ExpiresAt            int64
}

// MintDelegation issues a capability delegation naming clientIdentifier
// as audience, scoped to exactly the two upload actions on the master's
// authorized space, expiring 24 hours from issuance.
func (s *Service) MintDelegation(clientIdentifier string) (*DelegationGrant, error) {
	if s.identityErr != nil {
		var keyErr *KeyFormatError
		var proofErr *ProofFormatError
		if errors.As(s.identityErr, &keyErr) || errors.As(s.identityErr, &proofErr) {
			return nil, newConfigurationError("storage credentials could not be parsed; regenerate the master key and proof", s.identityErr)
		}
		return nil, newConfigurationError("storage credentials are not configured", s.identityErr)
	}

	if !strings.HasPrefix(clientIdentifier, ClientIdentifierPrefix) {
		return nil, newValidationErrorf("clientIdentifier", "identifier must start with %q", ClientIdentifierPrefix)
	}
	if len(clientIdentifier) > maxClientIdentifierLen {
		return nil, newValidationErrorf("clientIdentifier", "identifier exceeds %d characters", maxClientIdentifierLen)
	}

	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, newConfigurationError("could not generate delegation nonce", err)
	}

	now := time.Now()
	expiry := now.Add(delegationTTL)
	payload := DelegationPayload{
		Issuer:   s.identity.DID,
		Audience: clientIdentifier,
		Subject:  s.identity.SpaceDID,
		Capabilities: []Capability{
			{Can: CapabilityStoreAdd, With: s.identity.SpaceDID},
			{Can: CapabilityUploadAdd, With: s.identity.SpaceDID},
		},
		Expiry:   expiry.Unix(),
		IssuedAt: now.Unix(),
		Nonce:    nonce,
		Proof:    s.identity.Proof,
	}

	payloadBytes, err := delegationEncMode.Marshal(payload)
	if err != nil {
		return nil, newConfigurationError("could not encode delegation", err)
	}

	envelope := delegationEnvelope{
		Payload:   payloadBytes,
		Signature: ed25519.Sign(s.identity.Key, payloadBytes),
		Algorithm: delegationSignatureAlgo,
	}
	envelopeBytes, err := delegationEncMode.Marshal(envelope)
	if err != nil {
		return nil, newConfigurationError("could not encode delegation envelope", err)
	}

	return &DelegationGrant{
		Delegation:           base64.StdEncoding.EncodeToString(envelopeBytes),
		AuthorizedResourceId: s.identity.SpaceDID,
		ExpiresAt:            expiry.UnixMilli(),
	}, nil
}

// VerifyDelegation decodes a transport-encoded delegation, checks the
// envelope signature against the issuer's did:key, and rejects expired
// tokens. Returns the verified payload.
func VerifyDelegation(token string) (*DelegationPayload, error) {
	envelopeBytes, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("delegation is not valid base64: %w", err)
	}

	var envelope delegationEnvelope
	if err := cbor.Unmarshal(envelopeBytes, &envelope); err != nil {
		return nil, fmt.Errorf("delegation envelope is not valid CBOR: %w", err)
	}
	if envelope.Algorithm != delegationSignatureAlgo {
		return nil, fmt.Errorf("unsupported signature algorithm %q", envelope.Algorithm)
	}

	var payload DelegationPayload
	if err := cbor.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, fmt.Errorf("delegation payload is not valid CBOR: %w", err)
	}

	pub, err := publicKeyFromDID(payload.Issuer)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(pub, envelope.Payload, envelope.Signature) {
		return nil, errors.New("delegation signature verification failed")
	}
	if time.Now().Unix() >= payload.Expiry {
		return nil, errors.New("delegation has expired")
	}

	return &payload, nil
}

func publicKeyFromDID(did string) (ed25519.PublicKey, error) {
	encoded, ok := strings.CutPrefix(did, ClientIdentifierPrefix+"z")
	if !ok {
		return nil, fmt.Errorf("issuer %q is not a base58 did:key", did)
	}
	material, err := base58Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("issuer key decode failed: %w", err)
	}
	if len(material) != len(ed25519PubPrefix)+ed25519.PublicKeySize {
		return nil, fmt.Errorf("issuer key material is %d bytes, want %d", len(material), len(ed25519PubPrefix)+ed25519.PublicKeySize)
	}
	if material[0] != ed25519PubPrefix[0] || material[1] != ed25519PubPrefix[1] {
		return nil, errors.New("issuer key has wrong multicodec tag")
	}
	return ed25519.PublicKey(material[len(ed25519PubPrefix):]), nil
}
