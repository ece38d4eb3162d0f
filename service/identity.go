package service

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Multicodec varint prefixes for ed25519 key material.
var (
	ed25519PrivPrefix = []byte{0x80, 0x26} // varint(0x1300)
	ed25519PubPrefix  = []byte{0xed, 0x01} // varint(0xed)
)

// Canonical private keys are multibase base64pad: an "M" prefix followed
// by base64 over the multicodec tag and the 32-byte seed.
const multibasePrefixBase64Pad = "M"

// KeyFormatError reports that a private key string matched none of the
// accepted encodings. Attempted lists every form that was tried.
type KeyFormatError struct {
	Attempted []string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("unrecognized private key encoding (tried: %s)", strings.Join(e.Attempted, ", "))
}

// ProofFormatError reports a malformed authorization proof archive.
type ProofFormatError struct {
	Reason string
	Err    error
}

func (e *ProofFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed authorization proof: %s: %v", e.Reason, e.Err)
	}
	return "malformed authorization proof: " + e.Reason
}

func (e *ProofFormatError) Unwrap() error { return e.Err }

// MasterIdentity is the operator's signing keypair plus the proof that it
// is authorized to write to the configured space. Loaded once at startup
// and never serialized outward.
type MasterIdentity struct {
	Key      ed25519.PrivateKey
	DID      string
	SpaceDID string
	Proof    []ProofBlock
}

// ProofBlock is one link in the delegation chain granting the master key
// authority over the space.
type ProofBlock struct {
	Issuer       string   `cbor:"iss"`
	Audience     string   `cbor:"aud"`
	Resource     string   `cbor:"with"`
	Capabilities []string `cbor:"can"`
	Expiry       int64    `cbor:"exp"`
	Signature    []byte   `cbor:"sig"`
}

type proofArchive struct {
	Version     int          `cbor:"v"`
	Delegations []ProofBlock `cbor:"delegations"`
}

// LoadMasterIdentity normalizes the configured key material and parses
// the authorization proof. All three inputs are required.
func LoadMasterIdentity(masterKey, masterProof, spaceDID string) (*MasterIdentity, error) {
	if masterKey == "" {
		return nil, errors.New("master key is not configured")
	}
	if masterProof == "" {
		return nil, errors.New("master proof is not configured")
	}
	if spaceDID == "" {
		return nil, errors.New("space identifier is not configured")
	}

	key, _, err := NormalizeMasterKey(masterKey)
	if err != nil {
		return nil, err
	}

	proof, err := ParseProofArchive(masterProof)
	if err != nil {
		return nil, err
	}

	return &MasterIdentity{
		Key:      key,
		DID:      DIDFromPublicKey(key.Public().(ed25519.PublicKey)),
		SpaceDID: spaceDID,
		Proof:    proof,
	}, nil
}

// NormalizeMasterKey accepts a private key in one of three forms and
// returns the key plus its canonical multibase encoding:
//
//  1. canonical multibase base64pad ("M" prefix, multicodec tag + seed);
//  2. plain base64 over exactly the 32-byte ed25519 seed;
//  3. unpadded url-safe base64 over exactly the 32-byte seed.
//
// A decoded length that does not match is a failure for that form; the
// key is never truncated or padded to fit.
func NormalizeMasterKey(raw string) (ed25519.PrivateKey, string, error) {
	if strings.HasPrefix(raw, multibasePrefixBase64Pad) {
		if seed, err := decodeCanonicalKey(raw); err == nil {
			return ed25519.NewKeyFromSeed(seed), raw, nil
		}
		// An "M" prefix can also start a plain base64 string; fall
		// through and let the remaining decoders have a go.
	}

	attempted := []string{"multibase base64pad"}

	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(decoded) == ed25519.SeedSize {
			return ed25519.NewKeyFromSeed(decoded), canonicalKeyEncoding(decoded), nil
		}
		attempted = append(attempted, fmt.Sprintf("base64 (decoded %d bytes, want %d)", len(decoded), ed25519.SeedSize))
	} else {
		attempted = append(attempted, "base64")
	}

	if decoded, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
		if len(decoded) == ed25519.SeedSize {
			return ed25519.NewKeyFromSeed(decoded), canonicalKeyEncoding(decoded), nil
		}
		attempted = append(attempted, fmt.Sprintf("base64url (decoded %d bytes, want %d)", len(decoded), ed25519.SeedSize))
	} else {
		attempted = append(attempted, "base64url")
	}

	return nil, "", &KeyFormatError{Attempted: attempted}
}

func decodeCanonicalKey(raw string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, multibasePrefixBase64Pad))
	if err != nil {
		return nil, err
	}
	if len(decoded) != len(ed25519PrivPrefix)+ed25519.SeedSize {
		return nil, fmt.Errorf("canonical key envelope is %d bytes, want %d", len(decoded), len(ed25519PrivPrefix)+ed25519.SeedSize)
	}
	if decoded[0] != ed25519PrivPrefix[0] || decoded[1] != ed25519PrivPrefix[1] {
		return nil, errors.New("canonical key envelope has wrong multicodec tag")
	}
	return decoded[len(ed25519PrivPrefix):], nil
}

func canonicalKeyEncoding(seed []byte) string {
	envelope := make([]byte, 0, len(ed25519PrivPrefix)+len(seed))
	envelope = append(envelope, ed25519PrivPrefix...)
	envelope = append(envelope, seed...)
	return multibasePrefixBase64Pad + base64.StdEncoding.EncodeToString(envelope)
}

// ParseProofArchive decodes the transport form of the authorization proof
// (base64 over a CBOR archive) into a delegation chain.
func ParseProofArchive(raw string) ([]ProofBlock, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &ProofFormatError{Reason: "not valid base64", Err: err}
	}

	var archive proofArchive
	if err := cbor.Unmarshal(decoded, &archive); err != nil {
		return nil, &ProofFormatError{Reason: "not a CBOR proof archive", Err: err}
	}
	if archive.Version != 1 {
		return nil, &ProofFormatError{Reason: fmt.Sprintf("unsupported archive version %d", archive.Version)}
	}
	if len(archive.Delegations) == 0 {
		return nil, &ProofFormatError{Reason: "archive contains no delegations"}
	}
	for i, block := range archive.Delegations {
		if block.Issuer == "" || block.Audience == "" || block.Resource == "" {
			return nil, &ProofFormatError{Reason: fmt.Sprintf("delegation %d is missing principals", i)}
		}
		if len(block.Signature) == 0 {
			return nil, &ProofFormatError{Reason: fmt.Sprintf("delegation %d is unsigned", i)}
		}
	}

	return archive.Delegations, nil
}

// DIDFromPublicKey returns the did:key form of an ed25519 public key:
// multicodec tag plus key bytes, base58btc-encoded with a "z" prefix.
func DIDFromPublicKey(pub ed25519.PublicKey) string {
	material := make([]byte, 0, len(ed25519PubPrefix)+len(pub))
	material = append(material, ed25519PubPrefix...)
	material = append(material, pub...)
	return ClientIdentifierPrefix + "z" + base58Encode(material)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Encode(input []byte) string {
	x := new(big.Int).SetBytes(input)
	radix := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for x.Sign() > 0 {
		x.DivMod(x, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	// Leading zero bytes map to the zero digit.
	for _, b := range input {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	x := big.NewInt(0)
	radix := big.NewInt(58)
	for _, r := range s {
		idx := strings.IndexRune(base58Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("invalid base58 character %q", r)
		}
		x.Mul(x, radix)
		x.Add(x, big.NewInt(int64(idx)))
	}

	decoded := x.Bytes()
	var leading []byte
	for _, r := range s {
		if byte(r) != base58Alphabet[0] {
			break
		}
		leading = append(leading, 0)
	}
	return append(leading, decoded...), nil
}
