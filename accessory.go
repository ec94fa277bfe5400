package haystack

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/denysvitali/haystack-go/model"
)

// LoadAccessories reads every accessory file (.yaml, .yml, .json) in dir.
func LoadAccessories(dir string) ([]model.Accessory, error) {
	accessories := make([]model.Accessory, 0)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, v := range files {
		if v.IsDir() {
			continue
		}
		switch path.Ext(v.Name()) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		f, err := os.Open(path.Join(dir, v.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", v.Name(), err)
		}
		acc, err := ReadAccessory(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", v.Name(), err)
		}
		accessories = append(accessories, acc)
	}
	return accessories, nil
}

// ReadAccessory decodes one accessory. JSON files are valid input as well.
func ReadAccessory(r io.Reader) (model.Accessory, error) {
	var acc model.Accessory
	if err := yaml.NewDecoder(r).Decode(&acc); err != nil {
		return acc, err
	}
	if acc.ID == "" {
		return acc, fmt.Errorf("accessory without id")
	}
	if len(acc.MasterSecret) != MasterSecretSize {
		return acc, fmt.Errorf("accessory %s: %w", acc.ID, ErrInvalidSecretLength)
	}
	return acc, nil
}

func WriteAccessory(w io.Writer, acc model.Accessory) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(acc); err != nil {
		return err
	}
	return enc.Close()
}

// NewAccessory creates an accessory with a fresh random master secret.
func NewAccessory(name string) (model.Accessory, error) {
	secret := make([]byte, MasterSecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return model.Accessory{}, fmt.Errorf("unable to generate master secret: %w", err)
	}
	return model.Accessory{
		ID:           uuid.NewString(),
		Name:         name,
		Icon:         "creditcard.fill",
		Color:        "#ff0000",
		MasterSecret: secret,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}, nil
}

type KeyFormat string

const (
	KeyFormatBase64    KeyFormat = "base64"
	KeyFormatByteArray KeyFormat = "bytes"
	KeyFormatEscaped   KeyFormat = "escaped"
)

// FormatKey renders key material for pasting into accessory firmware.
func FormatKey(key []byte, format KeyFormat) (string, error) {
	parts := make([]string, len(key))
	switch format {
	case KeyFormatBase64:
		return base64.StdEncoding.EncodeToString(key), nil
	case KeyFormatByteArray:
		for i, b := range key {
			parts[i] = fmt.Sprintf("0x%x", b)
		}
		return strings.Join(parts, ", "), nil
	case KeyFormatEscaped:
		for i, b := range key {
			parts[i] = fmt.Sprintf("\\x%x", b)
		}
		return strings.Join(parts, ""), nil
	default:
		return "", fmt.Errorf("unknown key format %q", format)
	}
}
