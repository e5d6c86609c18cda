package handler

import (
	"crypto/sha256"
	"encoding/base64"

	"supa-artistry/internal/session"

	"github.com/gin-gonic/gin"
)

// generatePKCE creates an S256 verifier/challenge pair and keeps the
// verifier in a cookie for the callback.
func (h *Handler) generatePKCE(c *gin.Context) (verifier string, challenge string, err error) {
	verifier, err = session.RandomToken(32)
	if err != nil {
		return "", "", err
	}

	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])

	h.setFlowCookie(c, pkceCookieName, verifier)

	return verifier, challenge, nil
}

func getPKCEVerifier(c *gin.Context) string {
	return flowCookie(c, pkceCookieName)
}
