// Package apikey authenticates requests carrying a static API key, either
// as a bearer token or in the X-API-Key header. Only SHA-256 digests of the
// keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/auth"
)

// Header is the alternative to a bearer token.
const Header = "X-API-Key"

var errUnknownKey = errors.New("unknown API key")

// RawKeyEntry pairs a plaintext key with the identity it grants.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks keys against a fixed set.
type Authenticator struct {
	entries []entry
}

// New hashes the keys of entries; entries with an empty key are skipped.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(entries))}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(e.Key)), identity: e.Identity})
	}
	return a
}

// Len returns the number of usable keys.
func (a *Authenticator) Len() int { return len(a.entries) }

// Authenticate abstains when the request carries neither a bearer token
// nor an X-API-Key header, and otherwise answers Yes or No.
func (a *Authenticator) Authenticate(_ context.Context, req api.Request) auth.AuthResult {
	key, ok := auth.BearerToken(req)
	if !ok {
		if !req.Headers.Has(Header) {
			return auth.AuthResult{Decision: auth.Abstain}
		}
		key = req.Headers.Get(Header)
	}
	if key == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(key))
	// Every entry is compared so timing does not reveal which one matched.
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: errUnknownKey}
	}

	id := a.entries[match].identity
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
