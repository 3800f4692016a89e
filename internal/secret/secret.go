// Package secret implements the deterministic id mapping and the claim
// secret used by gift share links.
//
// The secret is a capability token: it appears only in the share link's
// `s` query parameter and is required by the escrow contract's claim entry
// point. It must never be written to the record store; GiftRecord has no
// field for it and nothing in this package returns it alongside a record.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GiftIDLength is the length of generated gift ids. 21 characters keeps the
// UTF-8 encoding well under the 32 bytes available in a bytes32 key.
const GiftIDLength = 21

const secretBytes = 32

// NewGiftID generates a URL-safe gift id.
func NewGiftID() (string, error) {
	id, err := gonanoid.New(GiftIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate gift id: %w", err)
	}
	return id, nil
}

// DeriveOnChainID maps a gift id to the bytes32 key the escrow contract is
// called with: the UTF-8 bytes of the id, left-padded with zeros to 32 bytes.
// Creation and claim both derive this independently, so it must stay stable.
func DeriveOnChainID(id string) ([32]byte, error) {
	var key [32]byte
	raw := []byte(id)
	if len(raw) == 0 {
		return key, fmt.Errorf("gift id is empty")
	}
	if len(raw) > 32 {
		return key, fmt.Errorf("gift id %q exceeds 32 bytes", id)
	}
	copy(key[:], common.LeftPadBytes(raw, 32))
	return key, nil
}

// OnChainIDHex returns the 0x-prefixed hex form of the derived key, the
// representation stored in the record store's giftId column.
func OnChainIDHex(id string) (string, error) {
	key, err := DeriveOnChainID(id)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(key[:]), nil
}

// GenerateSecret returns a fresh claim secret: 32 cryptographically random
// bytes, 0x-hex encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// HashSecret returns keccak256 of the secret's raw bytes. This digest is
// what the deposit entry points store on-chain; the contract later verifies
// the raw secret presented at claim time against it.
func HashSecret(secret string) ([32]byte, error) {
	var digest [32]byte
	raw, err := secretPayload(secret)
	if err != nil {
		return digest, err
	}
	copy(digest[:], crypto.Keccak256(raw))
	return digest, nil
}

// SecretBytes decodes the secret into the raw bytes passed to claimGift.
func SecretBytes(secret string) ([]byte, error) {
	return secretPayload(secret)
}

func secretPayload(secret string) ([]byte, error) {
	trimmed := strings.TrimPrefix(secret, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("secret is empty")
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid hex: %w", err)
	}
	return raw, nil
}

// ClaimPageLink is the claim link without its secret: <origin>/claim/<id>.
// This is the only form safe to persist or serve back from the record store.
func ClaimPageLink(origin, id string) string {
	return fmt.Sprintf("%s/claim/%s", strings.TrimRight(origin, "/"), url.PathEscape(id))
}

// BuildShareLink assembles the claim link: <origin>/claim/<id>?s=<secret>.
// The result carries the raw secret and exists only in the creation response.
func BuildShareLink(origin, id, secret string) string {
	return ClaimPageLink(origin, id) + "?s=" + url.QueryEscape(secret)
}

// ParseShareLink extracts the gift id and secret from a share link.
// A missing secret is an error: the link is incomplete and cannot claim.
func ParseShareLink(link string) (id, secretValue string, err error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", "", fmt.Errorf("invalid share link: %w", err)
	}
	const prefix = "/claim/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", "", fmt.Errorf("share link path %q is not a claim link", u.Path)
	}
	id, err = url.PathUnescape(strings.TrimPrefix(u.Path, prefix))
	if err != nil || id == "" || strings.Contains(id, "/") {
		return "", "", fmt.Errorf("share link has no gift id")
	}
	secretValue = u.Query().Get("s")
	if secretValue == "" {
		return "", "", fmt.Errorf("share link is missing the secret")
	}
	return id, secretValue, nil
}
