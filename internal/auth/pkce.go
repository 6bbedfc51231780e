package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ChallengeMethod はPKCEのcode_challenge_method。
const ChallengeMethod = "S256"

// PKCE はPKCEのcode_verifierとcode_challengeの組。
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE は32バイトの乱数からcode_verifierを生成し、S256のcode_challengeを計算する。
func NewPKCE() (*PKCE, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return &PKCE{
		Verifier:  verifier,
		Challenge: ChallengeFor(verifier),
	}, nil
}

// ChallengeFor はcode_verifierに対するS256のcode_challengeを返す。
func ChallengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
