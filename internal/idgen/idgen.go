// Package idgen computes deterministic, content-addressed memory ids and
// random ids for everything else, so that every id in the system is
// generated through one place.
package idgen

import (
	"crypto/sha256"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowerCaser = cases.Lower(language.Und)

// New returns a random UUID-shaped id for non-content-addressed entities
// (users, workspaces, conversations, messages, relationships, events).
func New() string {
	return uuid.New().String()
}

// Normalize lowercases, trims, and collapses internal whitespace, the
// canonical form used for deterministic id hashing.
func Normalize(s string) string {
	s = lowerCaser.String(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// MemoryID computes the deterministic id for a memory from
// (type, normalized_content, workspace_id), formatted as a UUID-shaped
// string by projecting its SHA-256 digest (see hashToUUID).
//
// entityType, when non-empty, is folded into the hash input for entity
// memories as "entityType:normalize(name)".
func MemoryID(memoryType, content, workspaceID, entityType string) string {
	input := memoryType + ":" + Normalize(content) + ":" + workspaceID
	if entityType != "" {
		input += ":" + entityType + ":" + Normalize(content)
	}
	return hashToUUID(input)
}

// hashToUUID projects a 256-bit SHA-256 digest into a UUID-shaped string
// by taking its first 16 bytes and setting the version/variant bits as
// uuid v5-style, without depending on uuid.NewSHA1's namespace semantics
// (we want pure content addressing, not namespace+name).
func hashToUUID(input string) string {
	sum := sha256.Sum256([]byte(input))
	var b [16]byte
	copy(b[:], sum[:16])
	b[6] = (b[6] & 0x0f) | 0x50 // version 5-shaped, for readability only
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		// uuid.FromBytes only fails on wrong-length input, which cannot
		// happen here; return the nil UUID defensively.
		return uuid.Nil.String()
	}
	return id.String()
}
