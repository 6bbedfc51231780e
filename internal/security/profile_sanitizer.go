package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/plowed/claimgate/internal/model"
)

// maxProfileFieldLength はユーザー名・表示名として保存する最大文字数。
const maxProfileFieldLength = 100

// ProfileSanitizer はXから取得したプロフィールを保存前に無害化する。
// ユーザー名と表示名からはHTMLを除去し、アバターURLはSSRFGuardの検証を通ったもののみ残す。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
	guard  *SSRFGuard
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer(guard *SSRFGuard) *ProfileSanitizer {
	return &ProfileSanitizer{
		policy: bluemonday.StrictPolicy(),
		guard:  guard,
	}
}

// SanitizeProfile は無害化したプロフィールを返す。IDは前後の空白のみ除去する。
func (s *ProfileSanitizer) SanitizeProfile(p model.XProfile) model.XProfile {
	out := model.XProfile{
		ID:       strings.TrimSpace(p.ID),
		Username: s.text(p.Username),
		Name:     s.text(p.Name),
	}
	if avatar := strings.TrimSpace(p.AvatarURL); avatar != "" && s.guard.ValidateURL(avatar) == nil {
		out.AvatarURL = avatar
	}
	return out
}

// text はタグを除去し、エスケープを戻した上で長さを制限する。
func (s *ProfileSanitizer) text(v string) string {
	cleaned := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
	if utf8.RuneCountInString(cleaned) <= maxProfileFieldLength {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:maxProfileFieldLength])
}
