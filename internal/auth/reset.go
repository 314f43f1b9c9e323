package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ResetToken is a freshly minted password-reset token. Raw goes to the
// user (embedded in the emailed reset link); only Hash and ExpiresAt are
// persisted on the credential record.
type ResetToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// ResetTokenIssuer mints single-use, time-boxed reset tokens.
//
// Unlike passwords, reset tokens are high-entropy random values that are
// only valid for minutes, so a fast SHA-256 digest of the raw token is
// enough — a slow password hash buys nothing here. Storing the digest
// instead of the raw token means a leaked database row cannot be turned
// into a working reset link.
type ResetTokenIssuer struct {
	ttl time.Duration
}

// NewResetTokenIssuer creates an issuer whose tokens expire after ttl.
// The reference window is 15 minutes.
func NewResetTokenIssuer(ttl time.Duration) *ResetTokenIssuer {
	return &ResetTokenIssuer{ttl: ttl}
}

// Create mints a new token: 20 bytes from crypto/rand, hex-encoded, with
// its digest and expiry.
func (i *ResetTokenIssuer) Create() (ResetToken, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return ResetToken{}, fmt.Errorf("auth: generating reset token: %w", err)
	}

	raw := hex.EncodeToString(buf)
	return ResetToken{
		Raw:       raw,
		Hash:      HashResetToken(raw),
		ExpiresAt: time.Now().Add(i.ttl),
	}, nil
}

// HashResetToken returns the hex-encoded SHA-256 digest of a raw token.
// Deterministic, so a presented token can be matched against the stored
// digest with a plain equality lookup.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
