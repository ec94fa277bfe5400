package haystack

import (
	"crypto/sha256"
	"fmt"

	"github.com/denysvitali/haystack-go/model"
)

// Hash maps a compressed public key to the identifier the upstream network indexes reports by.
// Only the X coordinate is hashed, exactly as the accessory broadcasts it; any other encoding
// yields identifiers that never match.
func Hash(publicKey []byte) (model.AdvertisementHash, error) {
	if len(publicKey) != PublicKeySize {
		return model.AdvertisementHash{}, fmt.Errorf("expected %d byte compressed public key, got %d bytes", PublicKeySize, len(publicKey))
	}
	if publicKey[0] != 0x02 && publicKey[0] != 0x03 {
		return model.AdvertisementHash{}, fmt.Errorf("expected compressed point prefix 0x02 or 0x03, got 0x%02x", publicKey[0])
	}
	return sha256.Sum256(publicKey[1:]), nil
}

// KeyID is the short identifier used to tell keys apart in logs.
func KeyID(h model.AdvertisementHash) string {
	return h.String()[:7]
}
