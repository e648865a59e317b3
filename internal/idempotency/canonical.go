package idempotency

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Canonicalize returns a deterministic encoding of v in which every nested
// object has its keys sorted, so field or insertion order never changes the
// bytes. Numbers keep their literal form.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}

	// encoding/json writes map keys in sorted order at every depth.
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode canonical params: %w", err)
	}
	return out, nil
}

// Fingerprint hashes clientKey|kind|canonical with BLAKE2b-256.
func Fingerprint(clientKey, kind string, canonical []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(clientKey))
	h.Write([]byte{'|'})
	h.Write([]byte(kind))
	h.Write([]byte{'|'})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
