// Package encoding provides deterministic encodings and content hashes for
// projection output.
package encoding

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// encMode uses Core Deterministic Encoding (RFC 8949 section 4.2): sorted map
// keys, shortest integer forms, definite lengths.
var encMode cbor.EncMode

// decMode ignores unknown fields so older builds read newer records.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("encoding: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("encoding: CBOR decoder initialization failed: " + err.Error())
	}
}

// Canonical encodes v to deterministic CBOR. Equal values always produce
// identical bytes.
func Canonical(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical cbor: %w", err)
	}
	return data, nil
}

// Decode decodes CBOR data produced by Canonical into v.
func Decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode cbor: %w", err)
	}
	return nil
}

// Fingerprint hashes the canonical encoding of v with BLAKE3 and returns the
// first 128 bits as 32 hex characters.
func Fingerprint(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
