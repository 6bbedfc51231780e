// Package resume はXアカウント連携を中断したユーザーのための再開処理を提供する。
package resume

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/plowed/claimgate/internal/code"
	"github.com/plowed/claimgate/internal/model"
)

// StartPath はOAuthフロー開始エンドポイントのパス。
const StartPath = "/oauth/start"

// CodeValidator は招待コード照合のインターフェース。
type CodeValidator interface {
	Validate(ctx context.Context, input string, policy code.Policy) (*code.Match, error)
}

// ClaimFinder は再開対象のclaimを探す。
type ClaimFinder interface {
	FindLatestUnlinkedByWallet(ctx context.Context, wallet, preferCodeID string) (*model.Claim, error)
	HasLinkedByWallet(ctx context.Context, wallet string) (bool, error)
}

// Resolver はコードとウォレットの組から連携再開先のURLを求める。
// OAuthStateは作成しない。
type Resolver struct {
	validator CodeValidator
	claims    ClaimFinder
}

// NewResolver はResolverを生成する。
func NewResolver(validator CodeValidator, claims ClaimFinder) *Resolver {
	return &Resolver{validator: validator, claims: claims}
}

// Resolve は未連携のclaimを特定し、連携を再開するURLを返す。
// コードは使用済みでも受け付けるが、期限切れは拒否する。
// 照合したコードで作成されたclaimがあればそれを優先する。
func (r *Resolver) Resolve(ctx context.Context, codeInput, wallet string) (string, error) {
	// 照合は発行時の表記と正規化形の両方で行うため、ここでは空白除去のみ
	codeInput = strings.TrimSpace(codeInput)
	wallet = strings.TrimSpace(wallet)
	if code.Canonical(codeInput) == "" || wallet == "" {
		return "", model.NewMissingInputError()
	}

	match, err := r.validator.Validate(ctx, codeInput, code.Resume)
	if err != nil {
		return "", err
	}

	claim, err := r.claims.FindLatestUnlinkedByWallet(ctx, wallet, match.CodeID)
	if err != nil {
		return "", fmt.Errorf("failed to find unlinked claim: %w", err)
	}
	if claim == nil {
		linked, err := r.claims.HasLinkedByWallet(ctx, wallet)
		if err != nil {
			return "", fmt.Errorf("failed to check linked claims: %w", err)
		}
		if linked {
			return "", model.NewAlreadyLinkedError()
		}
		return "", model.NewNoEligibleClaimError()
	}

	return ContinuationURL(claim.ID), nil
}

// ContinuationURL はclaimへの連携を開始するURLを返す。
func ContinuationURL(claimID string) string {
	return StartPath + "?mode=" + string(model.PurposeLink) + "&claim=" + url.QueryEscape(claimID)
}
