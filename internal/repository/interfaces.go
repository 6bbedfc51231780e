// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/plowed/claimgate/internal/model"
)

var (
	// ErrDuplicateClaim は同一ウォレット・同一tierのclaimが既に存在することを示す。
	ErrDuplicateClaim = errors.New("claim already exists for wallet and tier")
	// ErrReferralCodeTaken は生成したリファラルコードが既存のclaimと衝突したことを示す。
	ErrReferralCodeTaken = errors.New("referral code already taken")
	// ErrClaimNotFound は対象のclaimが存在しないことを示す。
	ErrClaimNotFound = errors.New("claim not found")
	// ErrAlreadyLinked はclaimに別のXアカウントが紐付け済みであることを示す。
	ErrAlreadyLinked = errors.New("claim already linked to another identity")
	// ErrPoolExhausted は割り当て可能な招待コードがプールに残っていないことを示す。
	ErrPoolExhausted = errors.New("discord code pool exhausted")
)

// CodeRepository は招待コードの読み出しインターフェース。
// コードの消費はClaimRepository.Redeemのみが行う。
type CodeRepository interface {
	// ListCandidates は照合対象のコードを返す。
	// includeUsedがfalseの場合は未使用のコードのみを返す。
	ListCandidates(ctx context.Context, includeUsed bool) ([]*model.Code, error)
}

// RedeemParams はコード引き換え1回分の入力。
type RedeemParams struct {
	CodeID       string
	Wallet       string
	IPHash       string
	UserAgent    string
	ReferralCode string
}

// RedeemResult はコード引き換えで作成されたclaimの識別情報。
type RedeemResult struct {
	ClaimID string
	Tier    string
}

// ClaimRepository はclaimの永続化インターフェース。
type ClaimRepository interface {
	// Redeem はコードの消費とclaim作成をストア側の1操作で行う。
	// コードが利用できない場合はnilを返す。
	// 同一ウォレット・同一tierのclaimが存在する場合はErrDuplicateClaim、
	// リファラルコードが衝突した場合はErrReferralCodeTakenを返す。いずれもコードは未使用のまま残る。
	Redeem(ctx context.Context, params RedeemParams) (*RedeemResult, error)

	// FindByID は指定IDのclaimを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Claim, error)

	// FindLatestByXUserID はXユーザーIDに紐付く最新のclaimを取得する。見つからない場合はnilを返す。
	FindLatestByXUserID(ctx context.Context, xUserID string) (*model.Claim, error)

	// FindLatestUnlinkedByWallet はウォレットに対する未連携claimのうち最新のものを返す。
	// preferCodeIDが指定された場合はそのコードで作成されたclaimを優先する。
	// 見つからない場合はnilを返す。
	FindLatestUnlinkedByWallet(ctx context.Context, wallet, preferCodeID string) (*model.Claim, error)

	// HasLinkedByWallet はウォレットに連携済みclaimが存在するかを返す。
	HasLinkedByWallet(ctx context.Context, wallet string) (bool, error)

	// LinkIdentity はclaimにXアカウントを紐付ける。
	// 未連携または同じXアカウントに連携済みの場合のみ更新する。
	// 別アカウントに連携済みの場合はErrAlreadyLinked、claimが無い場合はErrClaimNotFoundを返す。
	LinkIdentity(ctx context.Context, claimID string, profile model.XProfile) error

	// UpdateWallet はclaimのウォレットアドレスを変更する。
	// 一意制約に違反する場合はErrDuplicateClaimを返す。
	UpdateWallet(ctx context.Context, claimID, wallet string) error
}

// OAuthStateRepository はOAuthStateの永続化インターフェース。
type OAuthStateRepository interface {
	// Save はOAuthStateを保存する。
	Save(ctx context.Context, state *model.OAuthState) error

	// Take はOAuthStateを取得すると同時に削除する。
	// 同じstateに対して並行に呼ばれても1回だけ値を返す。見つからない場合はnilを返す。
	Take(ctx context.Context, state string) (*model.OAuthState, error)
}

// DiscordPoolRepository はDiscord配布用コードプールのインターフェース。
type DiscordPoolRepository interface {
	// AllocateCode はユーザーにコードを割り当てる。割り当て済みの場合は同じコードを返す。
	// プールが空の場合はErrPoolExhaustedを返す。
	AllocateCode(ctx context.Context, userID string) (string, error)
}
