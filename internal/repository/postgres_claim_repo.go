package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plowed/claimgate/internal/model"
)

const claimColumns = `id, wallet_address, tier, code_id, referral_code,
		 COALESCE(x_user_id, ''), COALESCE(x_username, ''), COALESCE(x_name, ''), COALESCE(x_avatar_url, ''),
		 ip_hash, user_agent, created_at`

// PostgresClaimRepo はPostgreSQLを使用したclaimリポジトリ。
type PostgresClaimRepo struct {
	db *sql.DB
}

// NewPostgresClaimRepo はPostgresClaimRepoを生成する。
func NewPostgresClaimRepo(db *sql.DB) *PostgresClaimRepo {
	return &PostgresClaimRepo{db: db}
}

// Redeem はredeem_code関数を呼び出し、コード消費とclaim作成を1トランザクションで行う。
func (r *PostgresClaimRepo) Redeem(ctx context.Context, params RedeemParams) (*RedeemResult, error) {
	result := &RedeemResult{}
	err := r.db.QueryRowContext(ctx,
		`SELECT out_claim_id, out_tier FROM redeem_code($1, $2, $3, $4, $5)`,
		params.CodeID, params.Wallet, params.IPHash, params.UserAgent, params.ReferralCode,
	).Scan(&result.ClaimID, &result.Tier)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if isUniqueViolation(err, "claims_wallet_tier_key") {
		return nil, ErrDuplicateClaim
	}
	if isUniqueViolation(err, "claims_referral_code_key") {
		return nil, ErrReferralCodeTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem code: %w", err)
	}

	return result, nil
}

// FindByID は指定IDのclaimを取得する。見つからない場合はnilを返す。
func (r *PostgresClaimRepo) FindByID(ctx context.Context, id string) (*model.Claim, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`,
		id,
	)
	claim, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find claim by ID: %w", err)
	}
	return claim, nil
}

// FindLatestByXUserID はXユーザーIDに紐付く最新のclaimを取得する。見つからない場合はnilを返す。
func (r *PostgresClaimRepo) FindLatestByXUserID(ctx context.Context, xUserID string) (*model.Claim, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE x_user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		xUserID,
	)
	claim, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find claim by x user ID: %w", err)
	}
	return claim, nil
}

// FindLatestUnlinkedByWallet はウォレットに対する未連携claimのうち最新のものを返す。
// preferCodeIDで作成されたclaimがあればそれを優先する。
func (r *PostgresClaimRepo) FindLatestUnlinkedByWallet(ctx context.Context, wallet, preferCodeID string) (*model.Claim, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+`
		 FROM claims
		 WHERE wallet_address = $1 AND x_user_id IS NULL
		 ORDER BY (code_id::text = $2) DESC, created_at DESC
		 LIMIT 1`,
		wallet, preferCodeID,
	)
	claim, err := scanClaim(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find unlinked claim: %w", err)
	}
	return claim, nil
}

// HasLinkedByWallet はウォレットに連携済みclaimが存在するかを返す。
func (r *PostgresClaimRepo) HasLinkedByWallet(ctx context.Context, wallet string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE wallet_address = $1 AND x_user_id IS NOT NULL)`,
		wallet,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check linked claims: %w", err)
	}
	return exists, nil
}

// LinkIdentity はclaimにXアカウントを紐付ける。
// 条件付きUPDATEで、別アカウントへの連携済みclaimを上書きしない。
func (r *PostgresClaimRepo) LinkIdentity(ctx context.Context, claimID string, profile model.XProfile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE claims
		 SET x_user_id = $2, x_username = $3, x_name = $4, x_avatar_url = NULLIF($5, '')
		 WHERE id = $1 AND (x_user_id IS NULL OR x_user_id = $2)`,
		claimID, profile.ID, profile.Username, profile.Name, profile.AvatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// 0件の場合はclaimの有無で理由を区別する
	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`,
		claimID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check claim existence: %w", err)
	}
	if !exists {
		return ErrClaimNotFound
	}
	return ErrAlreadyLinked
}

// UpdateWallet はclaimのウォレットアドレスを変更する。
func (r *PostgresClaimRepo) UpdateWallet(ctx context.Context, claimID, wallet string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE claims SET wallet_address = $2 WHERE id = $1`,
		claimID, wallet,
	)
	if isUniqueViolation(err, "claims_wallet_tier_key") {
		return ErrDuplicateClaim
	}
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// scanClaim は1行分のclaimを読み出す。行が無い場合はnil, nilを返す。
func scanClaim(row *sql.Row) (*model.Claim, error) {
	claim := &model.Claim{}
	err := row.Scan(
		&claim.ID, &claim.WalletAddress, &claim.Tier, &claim.CodeID, &claim.ReferralCode,
		&claim.XUserID, &claim.XUsername, &claim.XName, &claim.XAvatarURL,
		&claim.IPHash, &claim.UserAgent, &claim.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// compile-time interface check
var _ ClaimRepository = (*PostgresClaimRepo)(nil)
