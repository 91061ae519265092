package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
)

// BuildHMACSignature signs timestamp+method+path+body with the URL-safe base64
// secret. The body is left out entirely when empty.
func BuildHMACSignature(secret, timestamp, method, path string, body []byte) (string, error) {
	key, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return "", apperrors.New(apperrors.ErrSigning, "decode api secret", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	if len(body) > 0 {
		mac.Write(body)
	}
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
