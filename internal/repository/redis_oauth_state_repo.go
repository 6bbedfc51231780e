package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/plowed/claimgate/internal/model"
	"github.com/redis/go-redis/v9"
)

const oauthStateKeyPrefix = "oauth:state:"

// redisStateSlack は鮮度判定をサービス側で行えるよう、TTLに上乗せする猶予。
const redisStateSlack = time.Minute

// RedisOAuthStateRepo はRedisを使用したOAuthStateリポジトリ。
// キーにはTTLを設定するため、定期的なクリーンアップは不要。
type RedisOAuthStateRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisOAuthStateRepo はRedisOAuthStateRepoを生成する。
// windowはOAuthStateの鮮度ウィンドウ。
func NewRedisOAuthStateRepo(client *redis.Client, window time.Duration) *RedisOAuthStateRepo {
	return &RedisOAuthStateRepo{client: client, ttl: window + redisStateSlack}
}

type redisOAuthState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Purpose      string    `json:"purpose"`
	ClaimID      string    `json:"claim_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Save はOAuthStateをJSONとしてTTL付きで保存する。
func (r *RedisOAuthStateRepo) Save(ctx context.Context, state *model.OAuthState) error {
	data, err := json.Marshal(redisOAuthState{
		State:        state.State,
		CodeVerifier: state.CodeVerifier,
		Purpose:      string(state.Purpose),
		ClaimID:      state.ClaimID,
		CreatedAt:    state.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode oauth state: %w", err)
	}

	if err := r.client.Set(ctx, oauthStateKeyPrefix+state.State, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Take はGETDELでOAuthStateを取得と同時に削除する。
func (r *RedisOAuthStateRepo) Take(ctx context.Context, state string) (*model.OAuthState, error) {
	val, err := r.client.GetDel(ctx, oauthStateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take oauth state: %w", err)
	}

	var stored redisOAuthState
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode oauth state: %w", err)
	}

	return &model.OAuthState{
		State:        stored.State,
		CodeVerifier: stored.CodeVerifier,
		Purpose:      model.Purpose(stored.Purpose),
		ClaimID:      stored.ClaimID,
		CreatedAt:    stored.CreatedAt,
	}, nil
}

// compile-time interface check
var _ OAuthStateRepository = (*RedisOAuthStateRepo)(nil)
