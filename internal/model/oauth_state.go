package model

import "time"

// Purpose はOAuthフローの目的を表す。
type Purpose string

const (
	// PurposeLink はclaimへのXアカウント紐付け。
	PurposeLink Purpose = "link"
	// PurposeSignin はサインインのみ。claimは変更しない。
	PurposeSignin Purpose = "signin"
	// PurposeView はプロフィール表示用。claimは変更しない。
	PurposeView Purpose = "view"
)

// ParsePurpose は文字列をPurposeに変換する。空文字列はPurposeLinkとして扱う。
func ParsePurpose(s string) (Purpose, bool) {
	switch Purpose(s) {
	case "":
		return PurposeLink, true
	case PurposeLink, PurposeSignin, PurposeView:
		return Purpose(s), true
	default:
		return "", false
	}
}

// Valid は保存済みのPurposeとして有効な値かを返す。空文字列は無効。
func (p Purpose) Valid() bool {
	switch p {
	case PurposeLink, PurposeSignin, PurposeView:
		return true
	}
	return false
}

// OAuthState はPKCEフロー1回分の相関情報。コールバックで1度だけ消費される。
type OAuthState struct {
	State        string
	CodeVerifier string
	Purpose      Purpose
	ClaimID      string
	CreatedAt    time.Time
}
