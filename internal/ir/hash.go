package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainStep     = "qinfer/step/v1"
	DomainQuery    = "qinfer/query/v1"
	DomainModel    = "qinfer/model/v1"
	DomainSnapshot = "qinfer/snapshot/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash marshals v canonically and hashes it under the given domain.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// StepKey computes the structural identity of a filtered path step's
// filter and arguments. Two steps with equal filter trees and argument maps
// get equal keys regardless of how the trees were built.
// The id is not part of the hash; callers pair the hash with the step name.
func StepKey(filter, args any) (string, error) {
	obj := IRObject{}
	if filter != nil {
		v, err := toCanonicalValue(filter)
		if err != nil {
			return "", fmt.Errorf("StepKey: filter: %w", err)
		}
		obj["where"] = v
	}
	if args != nil {
		v, err := toCanonicalValue(args)
		if err != nil {
			return "", fmt.Errorf("StepKey: args: %w", err)
		}
		obj["args"] = v
	}
	if len(obj) == 0 {
		return "", nil
	}
	return Hash(DomainStep, obj)
}

// QueryID computes the content-addressed id of a canonical query document.
func QueryID(canonicalQuery []byte) string {
	return hashWithDomain(DomainQuery, canonicalQuery)
}

// ModelHash computes the content-addressed id of a canonical model document.
func ModelHash(canonicalModel []byte) string {
	return hashWithDomain(DomainModel, canonicalModel)
}

// SnapshotHash computes the id of a canonical resolution snapshot.
func SnapshotHash(canonicalSnapshot []byte) string {
	return hashWithDomain(DomainSnapshot, canonicalSnapshot)
}
