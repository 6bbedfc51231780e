// Package claim は招待コードの引き換えとclaim作成を提供する。
package claim

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/plowed/claimgate/internal/code"
	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/repository"
)

// walletKeyLength はウォレット公開鍵のバイト長。
const walletKeyLength = 32

// referralAlphabet は紛らわしい文字（0, O, 1, I）を除いた英数字。
const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	referralLength   = 8
	maxReferralTries = 3
)

// CodeValidator は招待コード照合のインターフェース。
type CodeValidator interface {
	Validate(ctx context.Context, input string, policy code.Policy) (*code.Match, error)
}

// Request はコード引き換えリクエスト。
type Request struct {
	Code      string
	Wallet    string
	ClientIP  string
	UserAgent string
}

// Result は作成されたclaim。
type Result struct {
	ClaimID      string
	Tier         string
	ReferralCode string
}

// Allocator は招待コードを消費してclaimを作成する。
// コードの消費はrepository.ClaimRepository.Redeemの1呼び出しのみで行う。
type Allocator struct {
	validator    CodeValidator
	claims       repository.ClaimRepository
	logger       *slog.Logger
	referralCode func() (string, error)
}

// NewAllocator はAllocatorを生成する。
func NewAllocator(validator CodeValidator, claims repository.ClaimRepository, logger *slog.Logger) *Allocator {
	return &Allocator{
		validator:    validator,
		claims:       claims,
		logger:       logger,
		referralCode: generateReferralCode,
	}
}

// Allocate はウォレットを検証し、コードを照合してからストア側で原子的に引き換える。
func (a *Allocator) Allocate(ctx context.Context, req Request) (*Result, error) {
	codeInput := strings.TrimSpace(req.Code)
	wallet := strings.TrimSpace(req.Wallet)
	if codeInput == "" || wallet == "" {
		return nil, model.NewMissingInputError()
	}

	// ストアに触れる前にウォレット形式を検証する
	if !ValidWallet(wallet) {
		return nil, model.NewInvalidWalletError()
	}

	match, err := a.validator.Validate(ctx, codeInput, code.FirstRedemption)
	if err != nil {
		return nil, err
	}

	params := repository.RedeemParams{
		CodeID:    match.CodeID,
		Wallet:    wallet,
		IPHash:    HashIP(req.ClientIP),
		UserAgent: req.UserAgent,
	}

	for attempt := 1; attempt <= maxReferralTries; attempt++ {
		params.ReferralCode, err = a.referralCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate referral code: %w", err)
		}

		res, err := a.claims.Redeem(ctx, params)
		switch {
		case errors.Is(err, repository.ErrReferralCodeTaken):
			a.logger.Warn("referral code collision, retrying",
				slog.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, repository.ErrDuplicateClaim):
			return nil, model.NewDuplicateWalletError()
		case err != nil:
			return nil, fmt.Errorf("failed to redeem code: %w", err)
		case res == nil:
			// 照合後に他のリクエストが先に消費した
			return nil, model.NewInvalidCodeError()
		}

		a.logger.Info("claim created",
			slog.String("claim_id", res.ClaimID),
			slog.String("tier", res.Tier),
		)
		return &Result{ClaimID: res.ClaimID, Tier: res.Tier, ReferralCode: params.ReferralCode}, nil
	}

	return nil, fmt.Errorf("failed to redeem code: %w", repository.ErrReferralCodeTaken)
}

// ValidWallet はアドレスがbase58で32バイトの公開鍵にデコードできるかを返す。
func ValidWallet(addr string) bool {
	decoded, err := base58.Decode(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	return len(decoded) == walletKeyLength
}

// HashIP はクライアントIPのSHA-256ハッシュ先頭32文字を返す。
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:32]
}

func generateReferralCode() (string, error) {
	var b strings.Builder
	b.Grow(referralLength)
	max := big.NewInt(int64(len(referralAlphabet)))
	for i := 0; i < referralLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(referralAlphabet[n.Int64()])
	}
	return b.String(), nil
}
