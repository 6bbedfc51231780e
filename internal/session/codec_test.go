package session

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCodec(now time.Time) *Codec {
	c := NewCodec("test-secret", 7*24*time.Hour)
	c.now = func() time.Time { return now }
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCodec(now)

	tests := []struct {
		name string
		in   Payload
	}{
		{"claimId付き", Payload{XUserID: "999", ClaimID: "6d0f8a1e-6c1b-4b55-9c52-1d3f4e5a6b7c"}},
		{"claimIdなし", Payload{XUserID: "12345"}},
		{"発行時刻指定", Payload{XUserID: "1", IssuedAt: now.Add(-time.Hour).Unix()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := c.Mint(tt.in)
			if err != nil {
				t.Fatalf("Mint returned error: %v", err)
			}
			got, err := c.Verify(token)
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			want := tt.in
			if want.IssuedAt == 0 {
				want.IssuedAt = now.Unix()
			}
			if *got != want {
				t.Errorf("payload = %+v, want %+v", *got, want)
			}
		})
	}
}

func TestCodec_Mint_Format(t *testing.T) {
	c := newTestCodec(time.Unix(1700000000, 0))
	token, err := c.Mint(Payload{XUserID: "999"})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	macPart, payloadPart, ok := strings.Cut(token, ".")
	if !ok {
		t.Fatalf("token %q has no separator", token)
	}
	mac, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil || len(mac) != 32 {
		t.Errorf("mac part should be a base64url SHA-256 digest: len=%d err=%v", len(mac), err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		t.Fatalf("payload part should be base64url: %v", err)
	}
	if string(raw) != `{"xUserId":"999","iat":1700000000}` {
		t.Errorf("payload json = %s", raw)
	}
}

// トークンのどの1バイトを書き換えても検証に失敗することを検証
func TestCodec_Verify_RejectsEveryByteMutation(t *testing.T) {
	c := newTestCodec(time.Now())
	token, err := c.Mint(Payload{XUserID: "999", ClaimID: "claim-1"})
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	replacements := []byte{'A', 'B', 'Q', 'g', 'z', '0', '9', '-', '_', '.', '=', '+', '/', '\n', ' ', 0x00, 0xff}
	for i := 0; i < len(token); i++ {
		for _, r := range replacements {
			if token[i] == r {
				continue
			}
			mutated := []byte(token)
			mutated[i] = r
			if _, err := c.Verify(string(mutated)); err == nil {
				t.Fatalf("mutation at %d (%q -> %q) was accepted", i, token[i], r)
			}
		}
	}
}

func TestCodec_Verify_Rejects(t *testing.T) {
	now := time.Now()
	c := newTestCodec(now)
	valid, _ := c.Mint(Payload{XUserID: "999"})
	macPart, payloadPart, _ := strings.Cut(valid, ".")

	other := NewCodec("other-secret", 0)
	foreign, _ := other.Mint(Payload{XUserID: "999"})

	// 署名は正しいがJSONとして不正なペイロード
	notJSON := encoding.EncodeToString(c.sign([]byte("not json"))) + "." + encoding.EncodeToString([]byte("not json"))
	// 署名は正しいがxUserIdが無いペイロード
	noUser := encoding.EncodeToString(c.sign([]byte(`{"iat":1}`))) + "." + encoding.EncodeToString([]byte(`{"iat":1}`))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"空文字列", "", ErrMalformed},
		{"区切りなし", macPart + payloadPart, ErrMalformed},
		{"MACなし", "." + payloadPart, ErrMalformed},
		{"ペイロードなし", macPart + ".", ErrMalformed},
		{"別の秘密鍵", foreign, ErrBadSignature},
		{"ペイロード差し替え", macPart + "." + encoding.EncodeToString([]byte(`{"xUserId":"1000","iat":1}`)), ErrBadSignature},
		{"パディング付き", valid + "=", ErrMalformed},
		{"JSON不正", notJSON, ErrMalformed},
		{"xUserIdなし", noUser, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCodec_Verify_MaxAge(t *testing.T) {
	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCodec(issued)
	token, _ := c.Mint(Payload{XUserID: "999"})

	c.now = func() time.Time { return issued.Add(7 * 24 * time.Hour) }
	if _, err := c.Verify(token); err != nil {
		t.Errorf("token at exactly max age should be accepted: %v", err)
	}

	c.now = func() time.Time { return issued.Add(7*24*time.Hour + time.Second) }
	if _, err := c.Verify(token); !errors.Is(err, ErrExpired) {
		t.Errorf("Verify() error = %v, want ErrExpired", err)
	}
}
