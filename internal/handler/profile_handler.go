package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/plowed/claimgate/internal/claim"
	"github.com/plowed/claimgate/internal/middleware"
	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/repository"
)

// ProfileStore はプロフィール表示・更新に必要なclaim操作のインターフェース。
type ProfileStore interface {
	FindLatestByXUserID(ctx context.Context, xUserID string) (*model.Claim, error)
	UpdateWallet(ctx context.Context, claimID, wallet string) error
}

// ProfileHandler はサインイン済みユーザーのプロフィールAPI。
type ProfileHandler struct {
	claims      ProfileStore
	defaultTier string
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(claims ProfileStore, defaultTier string) *ProfileHandler {
	if defaultTier == "" {
		defaultTier = model.DefaultTier
	}
	return &ProfileHandler{claims: claims, defaultTier: defaultTier}
}

type profileResponse struct {
	WalletAddress string  `json:"wallet_address"`
	Tier          string  `json:"tier"`
	ReferralCode  *string `json:"referral_code"`
	XUsername     *string `json:"x_username"`
	XName         *string `json:"x_name"`
	XAvatarURL    *string `json:"x_avatar_url"`
}

type updateWalletRequest struct {
	Wallet string `json:"wallet"`
}

type updatedClaim struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
}

type updateWalletResponse struct {
	OK    bool         `json:"ok"`
	Claim updatedClaim `json:"claim"`
}

// Me はセッションのXアカウントに紐付くclaimのプロフィールを返す。
// claimが無い場合も空のフィールドで200を返す。
// GET /profile/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	c, err := h.claims.FindLatestByXUserID(r.Context(), sess.XUserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := profileResponse{Tier: h.defaultTier}
	if c != nil {
		resp.WalletAddress = c.WalletAddress
		if c.Tier != "" {
			resp.Tier = c.Tier
		}
		resp.ReferralCode = nullable(c.ReferralCode)
		resp.XUsername = nullable(c.XUsername)
		resp.XName = nullable(c.XName)
		resp.XAvatarURL = nullable(c.XAvatarURL)
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateWallet はセッションのXアカウントに紐付く最新claimのウォレットアドレスを変更する。
// PATCH /profile/me/wallet
func (h *ProfileHandler) UpdateWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	wallet := strings.TrimSpace(req.Wallet)
	if !claim.ValidWallet(wallet) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidWalletError())
		return
	}

	c, err := h.claims.FindLatestByXUserID(r.Context(), sess.XUserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if c == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewClaimNotFoundError())
		return
	}

	err = h.claims.UpdateWallet(r.Context(), c.ID, wallet)
	switch {
	case errors.Is(err, repository.ErrDuplicateClaim):
		writeAPIErrorResponse(w, http.StatusConflict, model.NewWalletConflictError())
		return
	case errors.Is(err, repository.ErrClaimNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewClaimNotFoundError())
		return
	case err != nil:
		handleServiceError(w, err)
		return
	}

	slog.Info("wallet updated",
		slog.String("claim_id", c.ID),
		slog.String("x_user_id", sess.XUserID),
	)
	writeJSON(w, http.StatusOK, updateWalletResponse{
		OK:    true,
		Claim: updatedClaim{ID: c.ID, WalletAddress: wallet},
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
