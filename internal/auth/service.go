// Package auth はXアカウント連携のためのOAuth 2.0 + PKCEフローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/repository"
	"github.com/plowed/claimgate/internal/session"
)

// Stage はコールバック失敗時にリダイレクト先へ付与する段階タグ。
type Stage string

const (
	StageMissingParams       Stage = "missing_params"
	StageStateNotFound       Stage = "state_not_found"
	StageExpired             Stage = "expired"
	StageInvalidPurpose      Stage = "invalid_purpose"
	StageMissingClaimForLink Stage = "missing_claim_for_link"
	StageTokenExchangeFailed Stage = "token_exchange_failed"
	StageProfileFetchFailed  Stage = "profile_fetch_failed"
	StageUpdateClaimFailed   Stage = "update_claim_failed"
	StageAlreadyLinked       Stage = "already_linked"
	StageServerError         Stage = "server_error"
)

// StageError はOAuthフローのどの段階で失敗したかを保持するエラー。
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Stage)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// OAuthProvider はOAuth 2.0 + PKCEに対応したIdPのインターフェース。
type OAuthProvider interface {
	// AuthorizationURL は認可画面へのURLを生成する。
	AuthorizationURL(state, codeChallenge string) string
	// ExchangeToken は認可コードをアクセストークンに交換する。
	ExchangeToken(ctx context.Context, code, verifier string) (string, error)
	// FetchProfile はアクセストークンでユーザーのプロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken string) (*model.XProfile, error)
}

// ClaimLinker はclaimへのXアカウント紐付けを行う。
type ClaimLinker interface {
	LinkIdentity(ctx context.Context, claimID string, profile model.XProfile) error
}

// ProfileSanitizer はプロバイダーから受け取ったプロフィールを無害化する。
type ProfileSanitizer interface {
	SanitizeProfile(p model.XProfile) model.XProfile
}

// SessionMinter はセッショントークンを発行する。
type SessionMinter interface {
	Mint(p session.Payload) (string, error)
}

// DefaultStateTTL はServiceConfig.StateTTLが0以下の場合に使うOAuthStateの有効期間。
const DefaultStateTTL = 15 * time.Minute

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	StateTTL time.Duration // OAuthStateの有効期間（0以下はDefaultStateTTL）
}

// Service はOAuthフローの開始とコールバック処理を提供する。
type Service struct {
	provider  OAuthProvider
	states    repository.OAuthStateRepository
	claims    ClaimLinker
	sanitizer ProfileSanitizer
	sessions  SessionMinter
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	provider OAuthProvider,
	states repository.OAuthStateRepository,
	claims ClaimLinker,
	sanitizer ProfileSanitizer,
	sessions SessionMinter,
	config ServiceConfig,
) *Service {
	if config.StateTTL <= 0 {
		config.StateTTL = DefaultStateTTL
	}
	return &Service{
		provider:  provider,
		states:    states,
		claims:    claims,
		sanitizer: sanitizer,
		sessions:  sessions,
		config:    config,
		now:       time.Now,
	}
}

// Start はOAuthStateを保存し、認可画面へのURLを返す。
// modeが不正な場合、link時にclaimIDが無い場合は*model.APIErrorを返す。
func (s *Service) Start(ctx context.Context, mode, claimID string) (string, error) {
	purpose, ok := model.ParsePurpose(mode)
	if !ok {
		return "", model.NewInvalidPurposeError(mode)
	}

	claimID = strings.TrimSpace(claimID)
	if purpose == model.PurposeLink {
		if _, err := uuid.Parse(claimID); err != nil {
			return "", model.NewMissingClaimIDError()
		}
	} else {
		claimID = ""
	}

	pkce, err := NewPKCE()
	if err != nil {
		return "", err
	}

	st := &model.OAuthState{
		State:        uuid.NewString(),
		CodeVerifier: pkce.Verifier,
		Purpose:      purpose,
		ClaimID:      claimID,
		CreatedAt:    s.now(),
	}
	if err := s.states.Save(ctx, st); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	return s.provider.AuthorizationURL(st.State, pkce.Challenge), nil
}

// CallbackParams はコールバックで受け取るクエリパラメータ。
type CallbackParams struct {
	State string
	Code  string
}

// CallbackResult はコールバック成功時の結果。
type CallbackResult struct {
	SessionToken string
	Purpose      model.Purpose
	ClaimID      string
	XUserID      string
}

// Callback は認可コードを検証し、link時はclaimにXアカウントを紐付けてセッションを発行する。
// 失敗時は*StageErrorを返す。stateは成功・失敗に関わらず消費される。
func (s *Service) Callback(ctx context.Context, params CallbackParams) (*CallbackResult, error) {
	if params.State == "" || params.Code == "" {
		return nil, stageError(StageMissingParams, nil)
	}

	st, err := s.states.Take(ctx, params.State)
	if err != nil {
		return nil, stageError(StageServerError, err)
	}
	if st == nil || st.CodeVerifier == "" {
		return nil, stageError(StageStateNotFound, nil)
	}

	if s.now().Sub(st.CreatedAt) > s.config.StateTTL {
		return nil, stageError(StageExpired, nil)
	}

	if !st.Purpose.Valid() {
		return nil, stageError(StageInvalidPurpose, nil)
	}
	if st.Purpose == model.PurposeLink && st.ClaimID == "" {
		return nil, stageError(StageMissingClaimForLink, nil)
	}

	accessToken, err := s.provider.ExchangeToken(ctx, params.Code, st.CodeVerifier)
	if err != nil {
		return nil, stageError(StageTokenExchangeFailed, err)
	}

	raw, err := s.provider.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, stageError(StageProfileFetchFailed, err)
	}
	profile := s.sanitizer.SanitizeProfile(*raw)
	if profile.ID == "" {
		return nil, stageError(StageProfileFetchFailed, errors.New("empty profile id"))
	}

	payload := session.Payload{XUserID: profile.ID}

	if st.Purpose == model.PurposeLink {
		if err := s.claims.LinkIdentity(ctx, st.ClaimID, profile); err != nil {
			if errors.Is(err, repository.ErrAlreadyLinked) {
				return nil, stageError(StageAlreadyLinked, err)
			}
			return nil, stageError(StageUpdateClaimFailed, err)
		}
		payload.ClaimID = st.ClaimID
		slog.Info("x account linked",
			slog.String("claim_id", st.ClaimID),
			slog.String("x_user_id", profile.ID),
		)
	}

	token, err := s.sessions.Mint(payload)
	if err != nil {
		return nil, stageError(StageServerError, err)
	}

	return &CallbackResult{
		SessionToken: token,
		Purpose:      st.Purpose,
		ClaimID:      payload.ClaimID,
		XUserID:      profile.ID,
	}, nil
}
