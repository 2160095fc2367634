package handlers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// DefaultOperatorHeader carries the operator key when no header is configured.
const DefaultOperatorHeader = "X-Operator-Key"

// OperatorCredential marks requests carrying the operator key as privileged.
// The key is compared against a bcrypt hash; an empty hash disables the check.
// Once a key has verified, its SHA-256 digest is remembered so later requests
// with the same key skip bcrypt.
type OperatorCredential struct {
	header   string
	hash     []byte
	verified *atomic.Pointer[[sha256.Size]byte]
}

// NewOperatorCredential builds a resolver reading header and comparing its
// value with keyHash.
func NewOperatorCredential(header, keyHash string) OperatorCredential {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultOperatorHeader
	}
	return OperatorCredential{
		header:   header,
		hash:     []byte(strings.TrimSpace(keyHash)),
		verified: new(atomic.Pointer[[sha256.Size]byte]),
	}
}

// Verified reports whether r carries the key that already passed bcrypt. It
// never runs bcrypt itself.
func (c OperatorCredential) Verified(r *http.Request) bool {
	if len(c.hash) == 0 || r == nil || c.verified == nil {
		return false
	}
	key := r.Header.Get(c.header)
	if key == "" {
		return false
	}
	known := c.verified.Load()
	if known == nil {
		return false
	}
	digest := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare(digest[:], known[:]) == 1
}

// IsPrivileged implements PrivilegeResolver.
func (c OperatorCredential) IsPrivileged(r *http.Request) bool {
	if len(c.hash) == 0 || r == nil {
		return false
	}
	key := r.Header.Get(c.header)
	if key == "" {
		return false
	}
	if c.Verified(r) {
		return true
	}
	if bcrypt.CompareHashAndPassword(c.hash, []byte(key)) != nil {
		return false
	}
	if c.verified != nil {
		digest := sha256.Sum256([]byte(key))
		c.verified.Store(&digest)
	}
	return true
}

type privilegeKey struct{}

// ResolvePrivilege attaches a per-request privilege check to the context.
// The resolver runs at most once per request, and only when a handler asks.
func ResolvePrivilege(resolver PrivilegeResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			check := sync.OnceValue(func() bool { return resolver.IsPrivileged(r) })
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), privilegeKey{}, check)))
		})
	}
}

func privilegeFromContext(ctx context.Context) (func() bool, bool) {
	check, ok := ctx.Value(privilegeKey{}).(func() bool)
	return check, ok
}
