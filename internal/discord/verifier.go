// Package discord はDiscordのスラッシュコマンド（Interactions Webhook）を処理する。
package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// 署名ヘッダー名
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// ErrMissingPublicKey は公開鍵が設定されていないことを示す。
var ErrMissingPublicKey = errors.New("discord public key is not configured")

// Verifier はInteractionリクエストのEd25519署名を検証する。
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier は16進文字列の公開鍵からVerifierを生成する。
func NewVerifier(publicKeyHex string) (*Verifier, error) {
	publicKeyHex = strings.TrimPrefix(strings.TrimSpace(publicKeyHex), "0x")
	if publicKeyHex == "" {
		return nil, ErrMissingPublicKey
	}
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid discord public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid discord public key length: %d", len(key))
	}
	return &Verifier{key: ed25519.PublicKey(key)}, nil
}

// Verify はtimestamp || body に対する署名を検証する。
func (v *Verifier) Verify(signatureHex, timestamp string, body []byte) bool {
	if signatureHex == "" || timestamp == "" {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	return ed25519.Verify(v.key, msg, sig)
}
