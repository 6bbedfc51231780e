// Package session は署名付きセッショントークンの発行と検証を提供する。
//
// トークンは base64url(HMAC-SHA256(payload)) + "." + base64url(payload) の形式で、
// サーバー側に状態を持たない。
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// CookieName はセッショントークンを格納するCookie名。
const CookieName = "plowed_session"

var (
	// ErrMalformed はトークンの形式が不正であることを示す。
	ErrMalformed = errors.New("malformed session token")
	// ErrBadSignature は署名が一致しないことを示す。
	ErrBadSignature = errors.New("invalid session signature")
	// ErrExpired は発行から有効期間を過ぎたことを示す。
	ErrExpired = errors.New("session expired")
)

var encoding = base64.RawURLEncoding.Strict()

// Payload はトークンに格納する情報。
type Payload struct {
	XUserID  string `json:"xUserId"`
	ClaimID  string `json:"claimId,omitempty"`
	IssuedAt int64  `json:"iat"`
}

// Codec はセッショントークンの発行と検証を行う。
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewCodec はCodecを生成する。maxAgeが0以下の場合は発行時刻による失効を行わない。
func NewCodec(secret string, maxAge time.Duration) *Codec {
	return &Codec{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// MaxAge はトークンの有効期間を返す。
func (c *Codec) MaxAge() time.Duration {
	return c.maxAge
}

// Mint はペイロードに署名したトークンを返す。IssuedAtが0の場合は現在時刻を設定する。
func (c *Codec) Mint(p Payload) (string, error) {
	if p.IssuedAt == 0 {
		p.IssuedAt = c.now().Unix()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(c.sign(raw)) + "." + encoding.EncodeToString(raw), nil
}

// Verify はトークンの署名を検証し、ペイロードを返す。
// JSONのパースは署名検証に成功した後にのみ行う。
func (c *Codec) Verify(token string) (*Payload, error) {
	macPart, payloadPart, ok := strings.Cut(token, ".")
	if !ok || macPart == "" || payloadPart == "" {
		return nil, ErrMalformed
	}

	mac, err := encoding.DecodeString(macPart)
	if err != nil {
		return nil, ErrMalformed
	}
	raw, err := encoding.DecodeString(payloadPart)
	if err != nil {
		return nil, ErrMalformed
	}

	if !hmac.Equal(mac, c.sign(raw)) {
		return nil, ErrBadSignature
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, ErrMalformed
	}
	if p.XUserID == "" {
		return nil, ErrMalformed
	}

	if c.maxAge > 0 {
		issued := time.Unix(p.IssuedAt, 0)
		if c.now().Sub(issued) > c.maxAge {
			return nil, ErrExpired
		}
	}

	return &p, nil
}

func (c *Codec) sign(raw []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(raw)
	return h.Sum(nil)
}
