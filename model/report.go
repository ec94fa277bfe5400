package model

import "time"

// EncryptedReport is a single upstream record, split into its cryptographic parts but not yet trusted.
type EncryptedReport struct {
	Hash         AdvertisementHash
	SeenAt       time.Time
	PublishedAt  time.Time
	Confidence   int
	StatusCode   int
	EphemeralKey []byte
	Ciphertext   []byte
	Tag          []byte
}
