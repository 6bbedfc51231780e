package resume

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/plowed/claimgate/internal/code"
	"github.com/plowed/claimgate/internal/model"
	"github.com/plowed/claimgate/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// --- モック ---

type mockValidator struct {
	validateFn func(ctx context.Context, input string, policy code.Policy) (*code.Match, error)
}

func (m *mockValidator) Validate(ctx context.Context, input string, policy code.Policy) (*code.Match, error) {
	return m.validateFn(ctx, input, policy)
}

type mockClaimFinder struct {
	findUnlinkedFn func(ctx context.Context, wallet, preferCodeID string) (*model.Claim, error)
	hasLinkedFn    func(ctx context.Context, wallet string) (bool, error)
}

func (m *mockClaimFinder) FindLatestUnlinkedByWallet(ctx context.Context, wallet, preferCodeID string) (*model.Claim, error) {
	if m.findUnlinkedFn != nil {
		return m.findUnlinkedFn(ctx, wallet, preferCodeID)
	}
	return nil, nil
}

func (m *mockClaimFinder) HasLinkedByWallet(ctx context.Context, wallet string) (bool, error) {
	if m.hasLinkedFn != nil {
		return m.hasLinkedFn(ctx, wallet)
	}
	return false, nil
}

// compile-time interface checks
var _ CodeValidator = (*mockValidator)(nil)
var _ ClaimFinder = (*mockClaimFinder)(nil)
var _ ClaimFinder = (repository.ClaimRepository)(nil)
var _ CodeValidator = (*code.Validator)(nil)

const wallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func matchingValidator(gotInput *string, gotPolicy *code.Policy) *mockValidator {
	return &mockValidator{
		validateFn: func(_ context.Context, input string, policy code.Policy) (*code.Match, error) {
			if gotInput != nil {
				*gotInput = input
			}
			if gotPolicy != nil {
				*gotPolicy = policy
			}
			return &code.Match{CodeID: "code-1", Tier: "Early Access", Used: true}, nil
		},
	}
}

func assertAPIErrorCode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != want {
		t.Errorf("code = %q, want %q", apiErr.Code, want)
	}
}

func TestResolve_ReturnsContinuationURL(t *testing.T) {
	var gotInput string
	var gotPolicy code.Policy
	var gotWallet, gotPrefer string

	finder := &mockClaimFinder{
		findUnlinkedFn: func(_ context.Context, w, prefer string) (*model.Claim, error) {
			gotWallet, gotPrefer = w, prefer
			return &model.Claim{ID: "claim-42"}, nil
		},
	}
	r := NewResolver(matchingValidator(&gotInput, &gotPolicy), finder)

	got, err := r.Resolve(context.Background(), " abc-123 ", "  "+wallet+" ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("invalid url %q: %v", got, err)
	}
	if u.Path != StartPath {
		t.Errorf("path = %q, want %q", u.Path, StartPath)
	}
	if u.Query().Get("mode") != "link" || u.Query().Get("claim") != "claim-42" {
		t.Errorf("unexpected query %q", u.RawQuery)
	}

	// 正規化はValidatorのResumeポリシーが行うため、発行時の表記を残して渡す
	if gotInput != "abc-123" {
		t.Errorf("validated input = %q, want trimmed abc-123", gotInput)
	}
	if gotPolicy != code.Resume {
		t.Errorf("policy = %+v, want Resume", gotPolicy)
	}
	if gotWallet != wallet {
		t.Errorf("wallet = %q, want trimmed", gotWallet)
	}
	if gotPrefer != "code-1" {
		t.Errorf("preferCodeID = %q, want code-1", gotPrefer)
	}
}

type staticCodeRepo struct {
	codes []*model.Code
}

func (r *staticCodeRepo) ListCandidates(context.Context, bool) ([]*model.Code, error) {
	return r.codes, nil
}

var _ repository.CodeRepository = (*staticCodeRepo)(nil)

// TestResolve_WithValidator_CodeWithDelimiter は区切り文字を含む形で発行されたコードでも
// 引き換え時と同じ入力で再開できることを検証する。
func TestResolve_WithValidator_CodeWithDelimiter(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("ABC-123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	repo := &staticCodeRepo{codes: []*model.Code{{ID: "code-1", CodeHash: string(hash), Tier: "Early Access"}}}
	finder := &mockClaimFinder{
		findUnlinkedFn: func(_ context.Context, _, prefer string) (*model.Claim, error) {
			if prefer != "code-1" {
				t.Errorf("preferCodeID = %q, want code-1", prefer)
			}
			return &model.Claim{ID: "claim-7"}, nil
		},
	}
	r := NewResolver(code.NewValidator(repo, ""), finder)

	got, err := r.Resolve(context.Background(), " ABC-123 ", wallet)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != ContinuationURL("claim-7") {
		t.Errorf("url = %q", got)
	}
}

func TestResolve_MissingInput(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		wallet string
	}{
		{"empty code", "", wallet},
		{"punctuation only code", "--- ", wallet},
		{"empty wallet", "ABC123", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &mockValidator{validateFn: func(context.Context, string, code.Policy) (*code.Match, error) {
				t.Fatal("validator should not be called")
				return nil, nil
			}}
			r := NewResolver(v, &mockClaimFinder{})

			_, err := r.Resolve(context.Background(), tt.code, tt.wallet)
			assertAPIErrorCode(t, err, model.ErrCodeMissingInput)
		})
	}
}

func TestResolve_InvalidCode(t *testing.T) {
	v := &mockValidator{validateFn: func(context.Context, string, code.Policy) (*code.Match, error) {
		return nil, model.NewInvalidCodeError()
	}}
	finder := &mockClaimFinder{
		findUnlinkedFn: func(context.Context, string, string) (*model.Claim, error) {
			t.Fatal("claims should not be queried for an invalid code")
			return nil, nil
		},
	}
	r := NewResolver(v, finder)

	_, err := r.Resolve(context.Background(), "NOPE", wallet)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCode)
}

func TestResolve_NoUnlinkedClaim(t *testing.T) {
	tests := []struct {
		name     string
		linked   bool
		wantCode string
	}{
		{"already linked", true, model.ErrCodeAlreadyLinked},
		{"no claim at all", false, model.ErrCodeNoEligibleClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &mockClaimFinder{
				hasLinkedFn: func(context.Context, string) (bool, error) { return tt.linked, nil },
			}
			r := NewResolver(matchingValidator(nil, nil), finder)

			_, err := r.Resolve(context.Background(), "ABC123", wallet)
			assertAPIErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestResolve_StoreErrorIsWrapped(t *testing.T) {
	storeErr := errors.New("connection refused")
	finder := &mockClaimFinder{
		findUnlinkedFn: func(context.Context, string, string) (*model.Claim, error) { return nil, storeErr },
	}
	r := NewResolver(matchingValidator(nil, nil), finder)

	_, err := r.Resolve(context.Background(), "ABC123", wallet)
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Error("store error should not become an APIError")
	}
}

func TestContinuationURL_EscapesClaimID(t *testing.T) {
	got := ContinuationURL("a&b")
	if got != "/oauth/start?mode=link&claim=a%26b" {
		t.Errorf("ContinuationURL() = %q", got)
	}
}
