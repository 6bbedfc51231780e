package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/plowed/claimgate/internal/auth"
	"github.com/plowed/claimgate/internal/claim"
	"github.com/plowed/claimgate/internal/code"
	"github.com/plowed/claimgate/internal/discord"
	"github.com/plowed/claimgate/internal/model"
)

// --- モック定義 ---

type mockValidator struct {
	validateFn func(ctx context.Context, input string, policy code.Policy) (*code.Match, error)
}

func (m *mockValidator) Validate(ctx context.Context, input string, policy code.Policy) (*code.Match, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, input, policy)
	}
	return nil, model.NewInvalidCodeError()
}

type mockAllocator struct {
	allocateFn func(ctx context.Context, req claim.Request) (*claim.Result, error)
}

func (m *mockAllocator) Allocate(ctx context.Context, req claim.Request) (*claim.Result, error) {
	if m.allocateFn != nil {
		return m.allocateFn(ctx, req)
	}
	return nil, nil
}

type mockResumer struct {
	resolveFn func(ctx context.Context, codeInput, wallet string) (string, error)
}

func (m *mockResumer) Resolve(ctx context.Context, codeInput, wallet string) (string, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, codeInput, wallet)
	}
	return "", nil
}

type mockOAuthService struct {
	startFn    func(ctx context.Context, mode, claimID string) (string, error)
	callbackFn func(ctx context.Context, params auth.CallbackParams) (*auth.CallbackResult, error)
}

func (m *mockOAuthService) Start(ctx context.Context, mode, claimID string) (string, error) {
	if m.startFn != nil {
		return m.startFn(ctx, mode, claimID)
	}
	return "", nil
}

func (m *mockOAuthService) Callback(ctx context.Context, params auth.CallbackParams) (*auth.CallbackResult, error) {
	if m.callbackFn != nil {
		return m.callbackFn(ctx, params)
	}
	return nil, nil
}

type mockProfileStore struct {
	findLatestByXUserIDFn func(ctx context.Context, xUserID string) (*model.Claim, error)
	updateWalletFn        func(ctx context.Context, claimID, wallet string) error
}

func (m *mockProfileStore) FindLatestByXUserID(ctx context.Context, xUserID string) (*model.Claim, error) {
	if m.findLatestByXUserIDFn != nil {
		return m.findLatestByXUserIDFn(ctx, xUserID)
	}
	return nil, nil
}

func (m *mockProfileStore) UpdateWallet(ctx context.Context, claimID, wallet string) error {
	if m.updateWalletFn != nil {
		return m.updateWalletFn(ctx, claimID, wallet)
	}
	return nil
}

type mockGateway struct {
	handleFn func(ctx context.Context, in *discord.Interaction) *discord.Response
	calls    int
}

func (m *mockGateway) Handle(ctx context.Context, in *discord.Interaction) *discord.Response {
	m.calls++
	if m.handleFn != nil {
		return m.handleFn(ctx, in)
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// compile-time interface check
var (
	_ CodeValidator      = (*mockValidator)(nil)
	_ ClaimAllocator     = (*mockAllocator)(nil)
	_ ResumeResolver     = (*mockResumer)(nil)
	_ OAuthService       = (*mockOAuthService)(nil)
	_ ProfileStore       = (*mockProfileStore)(nil)
	_ InteractionGateway = (*mockGateway)(nil)
	_ HealthChecker      = (*mockHealthChecker)(nil)
)

// --- テストヘルパー ---

// validWallet はbase58で32バイトにデコードできるアドレス。
const validWallet = "11111111111111111111111111111111"

// parseAPIErrorResponse はレスポンスボディから統一エラーフォーマットをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
}
