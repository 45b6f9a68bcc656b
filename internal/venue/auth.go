package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Auth signs venue REST requests with HMAC-SHA256, the same
// "timestamp + method + path [+ body]" message construction the
// teacher's L2 trading auth used, minus the L1 EIP-712 wallet-signing
// half — this venue has no on-chain wallet to authenticate.
type Auth struct {
	apiKey string
	secret string // base64-encoded shared secret
}

// NewAuth creates a request signer from the venue API key/secret pair.
func NewAuth(apiKey, secret string) *Auth {
	return &Auth{apiKey: apiKey, secret: secret}
}

// Headers signs one request and returns the headers the venue expects.
func (a *Auth) Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := a.sign(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return map[string]string{
		"VENUE-API-KEY":   a.apiKey,
		"VENUE-SIGNATURE": sig,
		"VENUE-TIMESTAMP": timestamp,
	}, nil
}

func (a *Auth) sign(timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(a.secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path + body
	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
