// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, claim, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingInput    = "MISSING_INPUT"
	ErrCodeInvalidWallet   = "INVALID_WALLET"
	ErrCodeInvalidCode     = "INVALID_CODE"
	ErrCodeDuplicateWallet = "DUPLICATE_WALLET"
	ErrCodeAlreadyLinked   = "ALREADY_LINKED"
	ErrCodeNoEligibleClaim = "NO_ELIGIBLE_CLAIM"
	ErrCodeClaimNotFound   = "CLAIM_NOT_FOUND"
	ErrCodeInvalidPurpose  = "INVALID_PURPOSE"
	ErrCodeMissingClaimID  = "MISSING_CLAIM_ID"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeWalletConflict  = "WALLET_CONFLICT"
	ErrCodeCSRFFailed      = "CSRF_FAILED"
	ErrCodeInvalidBody     = "INVALID_BODY"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewMissingInputError は必須入力欠落エラーを生成する。
func NewMissingInputError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingInput,
		Message:  "Missing code or wallet.",
		Category: "validation",
		Action:   "招待コードとウォレットアドレスの両方を入力してください。",
	}
}

// NewInvalidWalletError はウォレットアドレス形式エラーを生成する。
func NewInvalidWalletError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWallet,
		Message:  "Invalid Solana address.",
		Category: "validation",
		Action:   "32バイトの公開鍵をbase58で表したアドレスを入力してください。",
	}
}

// NewInvalidCodeError は招待コード検証失敗エラーを生成する。
// 未登録・期限切れ・使用済みのいずれかは区別しない。
func NewInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  "Invalid or already-used code.",
		Category: "validation",
		Action:   "招待コードを確認してください。",
	}
}

// NewDuplicateWalletError は同一ウォレット・同一tierのclaimが既に存在する場合のエラーを生成する。
func NewDuplicateWalletError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateWallet,
		Message:  "This wallet has already claimed this tier.",
		Category: "claim",
		Action:   "別のウォレットを使用するか、既存のclaimからX連携を再開してください。",
	}
}

// NewAlreadyLinkedError はclaimに別のXアカウントが紐付け済みの場合のエラーを生成する。
func NewAlreadyLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyLinked,
		Message:  "Twitter already linked for this claim",
		Category: "claim",
		Action:   "Xでサインインしてプロフィールを確認してください。",
	}
}

// NewNoEligibleClaimError は再開可能なclaimが存在しない場合のエラーを生成する。
func NewNoEligibleClaimError() *APIError {
	return &APIError{
		Code:     ErrCodeNoEligibleClaim,
		Message:  "No eligible claim found for that wallet",
		Category: "claim",
		Action:   "招待コードを引き換えたウォレットアドレスを入力してください。",
	}
}

// NewClaimNotFoundError はセッションに対応するclaimが存在しない場合のエラーを生成する。
func NewClaimNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeClaimNotFound,
		Message:  "No claim found for this account",
		Category: "claim",
		Action:   "招待コードを引き換えてからX連携を行ってください。",
	}
}

// NewInvalidPurposeError は未知のOAuthモードが指定された場合のエラーを生成する。
func NewInvalidPurposeError(mode string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPurpose,
		Message:  fmt.Sprintf("Invalid mode: %s", mode),
		Category: "validation",
		Action:   "mode には link、signin、view のいずれかを指定してください。",
	}
}

// NewMissingClaimIDError はlinkモードでclaim IDが無い場合のエラーを生成する。
func NewMissingClaimIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingClaimID,
		Message:  "Missing claim id",
		Category: "validation",
		Action:   "招待コードの引き換えからやり直してください。",
	}
}

// NewUnauthorizedError は未サインインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Not signed in",
		Category: "auth",
		Action:   "Xでサインインしてください。",
	}
}

// NewWalletConflictError はウォレット変更が一意制約に違反した場合のエラーを生成する。
func NewWalletConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeWalletConflict,
		Message:  "That wallet is already registered for this tier.",
		Category: "claim",
		Action:   "別のウォレットアドレスを指定してください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInvalidBodyError はリクエストボディがJSONとして読めない場合のエラーを生成する。
func NewInvalidBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  "Invalid request body",
		Category: "validation",
		Action:   "JSON形式で送信してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ出力する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Server error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
