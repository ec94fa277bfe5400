package model

import (
	"encoding/base64"
	"fmt"
)

// Interval is the index of a fixed-length rotation slot counted from the schedule epoch.
type Interval uint32

// MasterSecret is the root of every key an accessory advertises. It is never sent anywhere.
type MasterSecret []byte

func (s MasterSecret) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(s)), nil
}

func (s *MasterSecret) UnmarshalText(text []byte) error {
	b, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid master secret encoding: %w", err)
	}
	*s = b
	return nil
}

type KeyPair struct {
	Interval   Interval
	PrivateKey []byte // big-endian scalar, curve byte size
	PublicKey  []byte // compressed point
}

// AdvertisementKey is the public key as broadcast by the accessory: the compressed point
// without its parity prefix.
func (k KeyPair) AdvertisementKey() []byte {
	if len(k.PublicKey) == 0 {
		return nil
	}
	return k.PublicKey[1:]
}

const AdvertisementHashSize = 32

type AdvertisementHash [AdvertisementHashSize]byte

func (h AdvertisementHash) String() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

func (h AdvertisementHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *AdvertisementHash) UnmarshalText(text []byte) error {
	parsed, err := ParseAdvertisementHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseAdvertisementHash decodes the base64 form used on the wire.
func ParseAdvertisementHash(s string) (AdvertisementHash, error) {
	var h AdvertisementHash
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid advertisement hash %q: %w", s, err)
	}
	if len(b) != AdvertisementHashSize {
		return h, fmt.Errorf("invalid advertisement hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}
