package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/guildbank/backend/internal/metrics"
	"github.com/guildbank/backend/internal/models"
	"github.com/guildbank/backend/internal/services"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request's canonical
// payload.
const SignatureHeader = "X-Signature"

// Signer holds the shared gateway secret. A Signer without a secret rejects
// everything.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the lowercase hex HMAC of payload.
func (s *Signer) Sign(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks signature against payload in constant time.
func (s *Signer) Verify(payload, signature string) error {
	if len(s.secret) == 0 {
		return models.ErrAuthenticationFailure
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) != sha256.Size {
		return models.ErrAuthenticationFailure
	}

	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	if !hmac.Equal(h.Sum(nil), given) {
		return models.ErrAuthenticationFailure
	}
	return nil
}

// VerifyRequest checks the X-Signature header of r against payload.
func (s *Signer) VerifyRequest(r *http.Request, payload string) error {
	return s.Verify(payload, r.Header.Get(SignatureHeader))
}

// RequireSignature rejects requests whose X-Signature does not match the
// payload derived from the request. Only for payloads that do not need the
// body.
func RequireSignature(signer *Signer, payload func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := signer.VerifyRequest(r, payload(r)); err != nil {
				metrics.RecordGatewayRejection("signature")
				services.SendLedgerError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
