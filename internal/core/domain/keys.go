package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	generalKeyPrefix = "__general__:"
	adhocKeyPrefix   = "__doc__:"
)

// CacheKey identifies a document cache entry. Document keys are content hashes;
// general and ad-hoc keys carry a namespace prefix so they never collide with a hash.
type CacheKey string

type KeyScope string

const (
	ScopeDocument KeyScope = "document"
	ScopeGeneral  KeyScope = "general"
	ScopeAdhoc    KeyScope = "adhoc"
)

func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func DocumentKey(contentHash string) CacheKey {
	return CacheKey(contentHash)
}

func GeneralKey(conversationID string) CacheKey {
	return CacheKey(generalKeyPrefix + conversationID)
}

// AdhocKey names a chat conversation over chunks that match no cached document.
func AdhocKey(chunks []string) CacheKey {
	sum := sha256.Sum256([]byte(strings.Join(chunks, "||")))
	return CacheKey(adhocKeyPrefix + hex.EncodeToString(sum[:]))
}

func (k CacheKey) Scope() KeyScope {
	switch {
	case strings.HasPrefix(string(k), generalKeyPrefix):
		return ScopeGeneral
	case strings.HasPrefix(string(k), adhocKeyPrefix):
		return ScopeAdhoc
	default:
		return ScopeDocument
	}
}

// SessionOnly reports whether the entry behind the key holds nothing but a chat session.
func (k CacheKey) SessionOnly() bool {
	return k.Scope() != ScopeDocument
}

func (k CacheKey) String() string {
	return string(k)
}
