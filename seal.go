package haystack

import (
	"crypto/elliptic"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/denysvitali/haystack-go/model"
)

// Seal encrypts fix to an accessory's public key the way a finder device does.
// The report carries fix.Timestamp as its seen time and fix.Confidence in the clear.
func Seal(rand io.Reader, publicKey []byte, fix model.LocationFix) (model.EncryptedReport, error) {
	plaintext, err := encodeFix(fix)
	if err != nil {
		return model.EncryptedReport{}, err
	}
	return seal(rand, publicKey, plaintext, fix)
}

func encodeFix(fix model.LocationFix) ([]byte, error) {
	if fix.Accuracy < 0 || fix.Accuracy > math.MaxUint8 {
		return nil, fmt.Errorf("accuracy %d does not fit in a byte", fix.Accuracy)
	}
	if fix.Status < 0 || fix.Status > math.MaxUint8 {
		return nil, fmt.Errorf("status %d does not fit in a byte", fix.Status)
	}
	data := make([]byte, 0, CiphertextSize)
	data = binary.BigEndian.AppendUint32(data, uint32(int32(math.Round(fix.Latitude*coordinateScale))))
	data = binary.BigEndian.AppendUint32(data, uint32(int32(math.Round(fix.Longitude*coordinateScale))))
	return append(data, byte(fix.Accuracy), byte(fix.Status)), nil
}

func seal(rand io.Reader, publicKey, plaintext []byte, fix model.LocationFix) (model.EncryptedReport, error) {
	h, err := Hash(publicKey)
	if err != nil {
		return model.EncryptedReport{}, err
	}
	curve := Curve()
	pubX, pubY := elliptic.UnmarshalCompressed(curve, publicKey)
	if pubX == nil {
		return model.EncryptedReport{}, fmt.Errorf("public key is not on the curve")
	}

	ephPriv, ephX, ephY, err := elliptic.GenerateKey(curve, rand)
	if err != nil {
		return model.EncryptedReport{}, fmt.Errorf("unable to generate ephemeral key: %w", err)
	}
	ephKey := elliptic.Marshal(curve, ephX, ephY)

	sharedX, _ := curve.ScalarMult(pubX, pubY, ephPriv)
	key, nonce := deriveSymmetricKey(sharedX.FillBytes(make([]byte, PrivateKeySize)), ephKey)

	aesgcm, err := newGCM(key)
	if err != nil {
		return model.EncryptedReport{}, err
	}
	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - TagSize

	return model.EncryptedReport{
		Hash:         h,
		SeenAt:       fix.Timestamp.Truncate(time.Second).UTC(),
		PublishedAt:  fix.PublishedAt,
		Confidence:   fix.Confidence,
		EphemeralKey: ephKey,
		Ciphertext:   sealed[:ctLen],
		Tag:          sealed[ctLen:],
	}, nil
}
