package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// tokenSep joins the digest inputs. It is not a legal username
// character, so the parts can never run into each other.
const tokenSep = "\n"

// TokenIssuer mints opaque bearer tokens. Tokens are compared only by
// equality against the stored value, never re-derived.
type TokenIssuer struct {
	secret string
	seq    atomic.Int64
}

// NewTokenIssuer creates an issuer around the given secret. An empty
// secret is replaced with a random process-local one, which still keeps
// tokens unguessable but makes them worthless across restarts.
func NewTokenIssuer(secret string) *TokenIssuer {
	if secret == "" {
		secret = uuid.NewString()
	}
	t := &TokenIssuer{secret: secret}
	// Seed from process start so sequences differ across restarts.
	t.seq.Store(time.Now().Unix())
	return t
}

// Issue returns a fresh token for username. Every call consumes the
// next sequence value, so repeated calls for the same username always
// produce distinct tokens.
func (t *TokenIssuer) Issue(username string) string {
	n := t.seq.Add(1)
	sum := sha256.Sum256([]byte(t.secret + tokenSep + username + tokenSep + fmt.Sprint(n)))
	return hex.EncodeToString(sum[:])
}
