// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultTier はtierが未設定のclaimに表示するデフォルト値。
const DefaultTier = "Early Access"

// Code は招待コードを表す。平文は保持せずbcryptハッシュのみを持つ。
type Code struct {
	ID        string
	CodeHash  string
	Tier      string
	ExpiresAt *time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Used はコードが使用済みかを返す。
func (c *Code) Used() bool {
	return c.UsedAt != nil
}

// Expired は基準時刻nowにおいてコードが期限切れかを返す。
// expires_atが未設定のコードは期限切れにならない。
func (c *Code) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Claim はウォレットアドレスとtierの組に対する招待の引き換え記録を表す。
// X連携前はXUserID等は空文字列。
type Claim struct {
	ID            string
	WalletAddress string
	Tier          string
	CodeID        string
	ReferralCode  string
	XUserID       string
	XUsername     string
	XName         string
	XAvatarURL    string
	IPHash        string
	UserAgent     string
	CreatedAt     time.Time
}

// Linked はXアカウントが紐付け済みかを返す。
func (c *Claim) Linked() bool {
	return c.XUserID != ""
}

// XProfile はXのプロフィールAPIから取得した外部アイデンティティ。
type XProfile struct {
	ID        string
	Username  string
	Name      string
	AvatarURL string
}
