// Package code は招待コードの照合を提供する。
// 照合は読み取りのみで、コードの消費はclaim.Allocatorが行う。
package code

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Policy は呼び出し元ごとの照合ポリシー。
type Policy struct {
	// AllowUsed が true の場合は使用済みコードも一致として扱う。
	AllowUsed bool
	// Canonicalize が true の場合は入力そのものに加え、英数字以外を除去し大文字化した表記でも照合する。
	Canonicalize bool
}

var (
	// PreCheck は引き換え前の事前確認用。再訪ユーザーのため使用済みも通す。
	PreCheck = Policy{AllowUsed: true}
	// FirstRedemption は初回引き換え用。使用済みは拒否する。
	FirstRedemption = Policy{}
	// Resume は連携再開用。使用済みを通し、入力の区切り文字や大小文字の揺れを吸収する。
	Resume = Policy{AllowUsed: true, Canonicalize: true}
)

// Match は照合に成功したコード。
type Match struct {
	CodeID string
	Tier   string
	Used   bool
}

// Validator は入力文字列と保存済みハッシュを照合する。
type Validator struct {
	codes       repository.CodeRepository
	defaultTier string
	now         func() time.Time
}

// NewValidator はValidatorを生成する。defaultTierはtier未設定のコードに使う。
func NewValidator(codes repository.CodeRepository, defaultTier string) *Validator {
	if defaultTier == "" {
		defaultTier = model.DefaultTier
	}
	return &Validator{codes: codes, defaultTier: defaultTier, now: time.Now}
}

// Validate は入力をポリシーに従って照合する。
// 保存済みハッシュは発行時の平文そのもの。前後の空白のみ除去して照合し、
// Canonicalize指定時は正規化した表記でも照合する。
// 未登録・期限切れ・使用済みはいずれも同じ*model.APIErrorを返す。
func (v *Validator) Validate(ctx context.Context, input string, policy Policy) (*Match, error) {
	forms := candidateForms(input, policy)
	if len(forms) == 0 {
		return nil, model.NewInvalidCodeError()
	}

	candidates, err := v.codes.ListCandidates(ctx, policy.AllowUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to load codes: %w", err)
	}

	now := v.now()
	for _, c := range candidates {
		if c.Expired(now) {
			continue
		}
		if c.Used() && !policy.AllowUsed {
			continue
		}
		if !matchesAny(c.CodeHash, forms) {
			continue
		}
		tier := c.Tier
		if tier == "" {
			tier = v.defaultTier
		}
		return &Match{CodeID: c.ID, Tier: tier, Used: c.Used()}, nil
	}

	return nil, model.NewInvalidCodeError()
}

// candidateForms は照合に使う入力表記を返す。
func candidateForms(input string, policy Policy) []string {
	var forms []string
	if plain := strings.TrimSpace(input); plain != "" {
		forms = append(forms, plain)
	}
	if policy.Canonicalize {
		if canon := Canonical(input); canon != "" && (len(forms) == 0 || canon != forms[0]) {
			forms = append(forms, canon)
		}
	}
	return forms
}

func matchesAny(hash string, forms []string) bool {
	for _, f := range forms {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(f)) == nil {
			return true
		}
	}
	return false
}

// Canonical は英数字以外を取り除き大文字化したコード表記を返す。
func Canonical(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
