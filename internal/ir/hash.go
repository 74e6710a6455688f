package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainBlock  = "tiny-engine/block/v1"
	DomainSource = "tiny-engine/source/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BlockHash computes the content hash of a block definition.
// Two definitions with the same name, source, file and child list hash equal.
func BlockHash(b BlockDefinition) (string, error) {
	children := make([]any, len(b.ChildBlocks))
	for i, c := range b.ChildBlocks {
		children[i] = c
	}

	canonical, err := MarshalCanonical(map[string]any{
		"name":         b.Name,
		"code":         b.Code,
		"file":         b.FileName(),
		"child_blocks": children,
	})
	if err != nil {
		return "", fmt.Errorf("BlockHash: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainBlock, canonical), nil
}

// SourceHash computes the content hash of published module text.
func SourceHash(source string) string {
	return hashWithDomain(DomainSource, []byte(source))
}
