package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/plowed/claimgate/internal/claim"
	"github.com/plowed/claimgate/internal/code"
	"github.com/plowed/claimgate/internal/metrics"
	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/resume"
)

// claimCookieName は/oauth/startでclaimパラメータが無い場合に参照するCookie名。
const claimCookieName = "claim_id"

// CodeValidator は招待コード照合のインターフェース。
type CodeValidator interface {
	Validate(ctx context.Context, input string, policy code.Policy) (*code.Match, error)
}

// ClaimAllocator は招待コード引き換えのインターフェース。
type ClaimAllocator interface {
	Allocate(ctx context.Context, req claim.Request) (*claim.Result, error)
}

// ResumeResolver はX連携再開先の解決インターフェース。
type ResumeResolver interface {
	Resolve(ctx context.Context, codeInput, wallet string) (string, error)
}

// ClaimHandlerConfig はClaimHandlerの設定。
type ClaimHandlerConfig struct {
	Cookie         CookieConfig
	ClaimCookieAge int // claim_id Cookieの有効期間（秒）
}

// ClaimHandler は招待コードの確認・引き換え・連携再開のHTTPハンドラー。
type ClaimHandler struct {
	validator CodeValidator
	allocator ClaimAllocator
	resumer   ResumeResolver
	metrics   metrics.MetricsCollector
	config    ClaimHandlerConfig
}

// NewClaimHandler はClaimHandlerを生成する。
func NewClaimHandler(validator CodeValidator, allocator ClaimAllocator, resumer ResumeResolver, m metrics.MetricsCollector, config ClaimHandlerConfig) *ClaimHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &ClaimHandler{
		validator: validator,
		allocator: allocator,
		resumer:   resumer,
		metrics:   m,
		config:    config,
	}
}

type codeCheckRequest struct {
	Code string `json:"code"`
}

type codeWalletRequest struct {
	Code   string `json:"code"`
	Wallet string `json:"wallet"`
}

type codeCheckResponse struct {
	OK   bool   `json:"ok"`
	Tier string `json:"tier"`
}

type claimResponse struct {
	OK           bool   `json:"ok"`
	ID           string `json:"id"`
	Tier         string `json:"tier"`
	ReferralCode string `json:"referral_code"`
	URL          string `json:"url"`
}

type resumeResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

// CheckCode は招待コードを消費せずに確認する。
// POST /code/check
func (h *ClaimHandler) CheckCode(w http.ResponseWriter, r *http.Request) {
	var req codeCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordCodeCheck("bad_request")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	match, err := h.validator.Validate(r.Context(), req.Code, code.PreCheck)
	if err != nil {
		h.metrics.RecordCodeCheck(resultLabel(err))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordCodeCheck("ok")
	writeJSON(w, http.StatusOK, codeCheckResponse{OK: true, Tier: match.Tier})
}

// Claim は招待コードを引き換えてclaimを作成する。
// POST /claim
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req codeWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordClaim("bad_request")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	res, err := h.allocator.Allocate(r.Context(), claim.Request{
		Code:      req.Code,
		Wallet:    req.Wallet,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.metrics.RecordClaim(resultLabel(err))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordClaim("created")

	// X連携の開始時にclaimパラメータが欠けた場合のフォールバック
	http.SetCookie(w, h.config.Cookie.cookie(claimCookieName, res.ClaimID, h.config.ClaimCookieAge))

	writeJSON(w, http.StatusOK, claimResponse{
		OK:           true,
		ID:           res.ClaimID,
		Tier:         res.Tier,
		ReferralCode: res.ReferralCode,
		URL:          resume.ContinuationURL(res.ClaimID),
	})
}

// Resume はコードとウォレットから未連携のclaimを探し、X連携の開始URLを返す。
// POST /resume
func (h *ClaimHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req codeWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordResume("bad_request")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	url, err := h.resumer.Resolve(r.Context(), req.Code, req.Wallet)
	if err != nil {
		h.metrics.RecordResume(resultLabel(err))
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordResume("ok")
	slog.Debug("resume resolved", slog.String("url", url))
	writeJSON(w, http.StatusOK, resumeResponse{OK: true, URL: url})
}

// resultLabel はエラーをメトリクスのresultラベルに変換する。
func resultLabel(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return "error"
	}
	switch apiErr.Code {
	case model.ErrCodeMissingInput, model.ErrCodeInvalidWallet:
		return "bad_request"
	case model.ErrCodeInvalidCode:
		return "invalid_code"
	case model.ErrCodeDuplicateWallet:
		return "duplicate"
	case model.ErrCodeAlreadyLinked:
		return "already_linked"
	case model.ErrCodeNoEligibleClaim:
		return "no_claim"
	default:
		return "error"
	}
}
