package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for digests.
// Version suffix enables future algorithm migration.
const (
	DomainRecord = "crudkit/record/v1"
	DomainSpec   = "crudkit/spec/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordDigest computes a stable digest of a coerced record. Two reads of the
// same unchanged row produce the same digest; the HTTP layer uses it as ETag.
func RecordDigest(entity string, record IRObject) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"entity": IRString(entity),
		"record": record,
	})
	if err != nil {
		return "", fmt.Errorf("RecordDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// SpecDigest computes a digest of an entity spec. The store records it so a
// changed spec against an existing table is visible in schema_meta.
func SpecDigest(spec EntitySpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("SpecDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSpec, data), nil
}
