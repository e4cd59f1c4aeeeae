package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows changing
// the algorithm later.
const (
	DomainNamespace   = "interop/namespace/v1"
	DomainDeclaration = "interop/declaration/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// NamespaceHash identifies the generated artifacts of one namespace. Two
// passes over equal descriptors produce equal hashes.
func NamespaceHash(ns NamespaceDescriptor) (string, error) {
	canonical, err := MarshalCanonical(ns)
	if err != nil {
		return "", fmt.Errorf("NamespaceHash: %w", err)
	}
	return hashWithDomain(DomainNamespace, canonical), nil
}

// DeclarationHash identifies a whole declaration set.
func DeclarationHash(d Declaration) (string, error) {
	canonical, err := MarshalCanonical(d)
	if err != nil {
		return "", fmt.Errorf("DeclarationHash: %w", err)
	}
	return hashWithDomain(DomainDeclaration, canonical), nil
}
