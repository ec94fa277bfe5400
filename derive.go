package haystack

import (
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/denysvitali/haystack-go/model"
)

const (
	MasterSecretSize = 32
	PrivateKeySize   = 28
	PublicKeySize    = 1 + PrivateKeySize
)

var derivationInfo = []byte("haystack key rotation")

// curveOrder is n of P-224, big-endian.
var curveOrder = Curve().Params().N.FillBytes(make([]byte, PrivateKeySize))

// Curve is the curve accessories advertise on.
func Curve() elliptic.Curve {
	return elliptic.P224()
}

// Derive computes the key pair an accessory advertises during interval.
// The result depends only on its inputs; callers may cache it freely.
func Derive(secret model.MasterSecret, interval model.Interval) (model.KeyPair, error) {
	if len(secret) != MasterSecretSize {
		return model.KeyPair{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSecretLength, len(secret), MasterSecretSize)
	}

	info := make([]byte, len(derivationInfo)+4)
	copy(info, derivationInfo)
	binary.BigEndian.PutUint32(info[len(derivationInfo):], uint32(interval))

	// Candidates outside [1, n-1] are rejected and the next block is read. For P-224 that
	// happens with probability 2^-112.
	okm := hkdf.New(sha256.New, secret, nil, info)
	priv := make([]byte, PrivateKeySize)
	for {
		if _, err := io.ReadFull(okm, priv); err != nil {
			return model.KeyPair{}, fmt.Errorf("unable to expand master secret: %w", err)
		}
		if validScalar(priv) == 1 {
			break
		}
	}

	curve := Curve()
	x, y := curve.ScalarBaseMult(priv)

	return model.KeyPair{
		Interval:   interval,
		PrivateKey: priv,
		PublicKey:  elliptic.MarshalCompressed(curve, x, y),
	}, nil
}

// validScalar returns 1 if 0 < k < n, in constant time. k must be PrivateKeySize bytes.
func validScalar(k []byte) int {
	var borrow uint32
	for i := len(k) - 1; i >= 0; i-- {
		borrow = (uint32(k[i]) - uint32(curveOrder[i]) - borrow) >> 31
	}
	nonZero := subtle.ConstantTimeCompare(k, make([]byte, len(k))) ^ 1
	return int(borrow) & nonZero
}
