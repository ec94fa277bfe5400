package haystack

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/denysvitali/haystack-go/model"
)

const (
	EphemeralKeySize = 1 + 2*PrivateKeySize
	CiphertextSize   = 10
	TagSize          = 16
	NonceSize        = 16

	// seen timestamp + confidence + ephemeral key + ciphertext + tag
	payloadSize         = 4 + 1 + EphemeralKeySize + CiphertextSize + TagSize
	extendedPayloadSize = payloadSize + 1

	coordinateScale = 10000000.0
)

// FindResult is the upstream response body.
type FindResult struct {
	Results []Report `json:"results"`
}

// Report is an upstream record as it appears on the wire.
type Report struct {
	ID            string `json:"id"`
	DatePublished int64  `json:"datePublished"`
	Payload       string `json:"payload"`
	Description   string `json:"description"`
	StatusCode    int    `json:"statusCode"`
}

// ParseReport splits a wire record into its parts. Only lengths are validated here.
func ParseReport(r Report) (model.EncryptedReport, error) {
	var er model.EncryptedReport
	h, err := model.ParseAdvertisementHash(r.ID)
	if err != nil {
		return er, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	payload, err := base64.StdEncoding.DecodeString(r.Payload)
	if err != nil {
		return er, fmt.Errorf("%w: payload is not base64: %v", ErrMalformedPayload, err)
	}

	switch len(payload) {
	case payloadSize:
	case extendedPayloadSize:
		// newer finders insert one byte after the timestamp
		logger.Tracef("extended payload for %s", KeyID(h))
		payload = append(payload[:4:4], payload[5:]...)
	default:
		return er, fmt.Errorf("%w: payload length %d", ErrMalformedPayload, len(payload))
	}

	off := 5
	er = model.EncryptedReport{
		Hash:         h,
		SeenAt:       DefaultEpoch.Add(time.Duration(binary.BigEndian.Uint32(payload[0:4])) * time.Second),
		PublishedAt:  time.UnixMilli(r.DatePublished).UTC(),
		Confidence:   int(payload[4]),
		StatusCode:   r.StatusCode,
		EphemeralKey: payload[off : off+EphemeralKeySize],
		Ciphertext:   payload[off+EphemeralKeySize : off+EphemeralKeySize+CiphertextSize],
		Tag:          payload[off+EphemeralKeySize+CiphertextSize:],
	}
	return er, nil
}

// EncodeReport is the inverse of ParseReport.
func EncodeReport(er model.EncryptedReport) Report {
	payload := make([]byte, 0, payloadSize)
	payload = binary.BigEndian.AppendUint32(payload, uint32(er.SeenAt.Sub(DefaultEpoch)/time.Second))
	payload = append(payload, byte(er.Confidence))
	payload = append(payload, er.EphemeralKey...)
	payload = append(payload, er.Ciphertext...)
	payload = append(payload, er.Tag...)
	return Report{
		ID:            er.Hash.String(),
		DatePublished: er.PublishedAt.UnixMilli(),
		Payload:       base64.StdEncoding.EncodeToString(payload),
		StatusCode:    er.StatusCode,
	}
}

// Decrypt authenticates and decrypts a report with the key its hash points to.
// Nothing of the plaintext is returned unless the tag verifies.
func Decrypt(report model.EncryptedReport, keys KeyTable) (model.LocationFix, error) {
	ref, ok := keys[report.Hash]
	if !ok {
		return model.LocationFix{}, fmt.Errorf("%w: %s", ErrUnknownKey, KeyID(report.Hash))
	}
	return DecryptWithKey(report, ref.KeyPair)
}

func DecryptWithKey(report model.EncryptedReport, kp model.KeyPair) (model.LocationFix, error) {
	if len(report.EphemeralKey) != EphemeralKeySize ||
		len(report.Ciphertext) != CiphertextSize ||
		len(report.Tag) != TagSize {
		return model.LocationFix{}, fmt.Errorf("%w: unexpected field sizes %d/%d/%d",
			ErrMalformedPayload, len(report.EphemeralKey), len(report.Ciphertext), len(report.Tag))
	}

	curve := Curve()
	ephX, ephY := elliptic.Unmarshal(curve, report.EphemeralKey)
	if ephX == nil || ephY == nil {
		return model.LocationFix{}, fmt.Errorf("%w: ephemeral key is not on the curve", ErrMalformedPayload)
	}
	sharedX, _ := curve.ScalarMult(ephX, ephY, kp.PrivateKey)
	shared := sharedX.FillBytes(make([]byte, PrivateKeySize))

	key, nonce := deriveSymmetricKey(shared, report.EphemeralKey)
	plaintext, err := decrypt(report.Ciphertext, key, nonce, report.Tag)
	if err != nil {
		return model.LocationFix{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	fix, err := decodeFix(plaintext)
	if err != nil {
		return model.LocationFix{}, err
	}
	fix.Timestamp = report.SeenAt
	fix.PublishedAt = report.PublishedAt
	fix.Confidence = report.Confidence
	logger.Tracef("decrypted %s\t%s", KeyID(report.Hash), fix)
	return fix, nil
}

// deriveSymmetricKey is a single-block ANSI X9.63 KDF over SHA-256.
func deriveSymmetricKey(shared, ephemeralKey []byte) (key, nonce []byte) {
	h := sha256.New()
	h.Write(shared)
	h.Write([]byte{0x00, 0x00, 0x00, 0x01})
	h.Write(ephemeralKey)
	sum := h.Sum(nil)
	return sum[:16], sum[16:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

func decrypt(encData, key, iv, tag []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(encData)+len(tag))
	sealed = append(sealed, encData...)
	sealed = append(sealed, tag...)
	return aesgcm.Open(nil, iv, sealed, nil)
}

func decodeFix(data []byte) (model.LocationFix, error) {
	if len(data) != CiphertextSize {
		return model.LocationFix{}, fmt.Errorf("%w: plaintext length %d", ErrMalformedPayload, len(data))
	}
	lat := float64(int32(binary.BigEndian.Uint32(data[:4]))) / coordinateScale
	lng := float64(int32(binary.BigEndian.Uint32(data[4:8]))) / coordinateScale
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return model.LocationFix{}, fmt.Errorf("%w: coordinate out of range (%f, %f)", ErrMalformedPayload, lat, lng)
	}
	return model.LocationFix{
		Latitude:  lat,
		Longitude: lng,
		Accuracy:  int(data[8]),
		Status:    int(data[9]),
	}, nil
}
