package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/plowed/claimgate/internal/metrics"
	"github.com/plowed/claimgate/internal/repository"
)

// CommandClaim は招待コードを配布するスラッシュコマンド名。
const CommandClaim = "claim"

// ResponseMode はコマンドへの応答方式。
type ResponseMode string

const (
	// ModeSync はコードを割り当ててから応答する。
	ModeSync ResponseMode = "sync"
	// ModeDeferred は即座に遅延応答を返し、割り当て結果をフォローアップで送る。
	ModeDeferred ResponseMode = "deferred"
)

const defaultFollowupTimeout = 15 * time.Second

const (
	msgUnknownCommand   = "Unknown command."
	msgChannelForbidden = "This command is not available in this channel."
	msgNoUser           = "Could not identify your Discord account."
	msgPoolExhausted    = "No invite codes are available right now. Please try again later."
	msgAllocationFailed = "Something went wrong while allocating your code. Please try again later."
)

// CodeAllocator はDiscordユーザーへの招待コード割り当てを行う。
type CodeAllocator interface {
	AllocateCode(ctx context.Context, userID string) (string, error)
}

// FollowupSender は遅延応答のフォローアップを送信する。
type FollowupSender interface {
	SendFollowup(ctx context.Context, applicationID, token string, msg MessageData) error
}

// GatewayConfig はGatewayの設定。
type GatewayConfig struct {
	Mode              ResponseMode
	AllowedChannelIDs []string
	ApplicationID     string // Interactionにapplication_idが無い場合に使う
	ClaimURL          string // コードの引き換え先。空の場合は案内を付けない
	FollowupTimeout   time.Duration
}

// Gateway は署名検証済みのInteractionを処理する。
type Gateway struct {
	allocator CodeAllocator
	followups FollowupSender
	config    GatewayConfig
	allowed   map[string]struct{}
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	tasks sync.WaitGroup
}

// NewGateway はGatewayを生成する。
func NewGateway(allocator CodeAllocator, followups FollowupSender, config GatewayConfig, m metrics.MetricsCollector, logger *slog.Logger) *Gateway {
	if config.Mode != ModeDeferred {
		config.Mode = ModeSync
	}
	if config.FollowupTimeout <= 0 {
		config.FollowupTimeout = defaultFollowupTimeout
	}
	if m == nil {
		m = metrics.Nop{}
	}

	allowed := make(map[string]struct{}, len(config.AllowedChannelIDs))
	for _, id := range config.AllowedChannelIDs {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}

	return &Gateway{
		allocator: allocator,
		followups: followups,
		config:    config,
		allowed:   allowed,
		metrics:   m,
		logger:    logger,
	}
}

// Handle はInteractionに対する応答を返す。
// PINGとコマンド以外の種別にはnilを返し、呼び出し元は200 "ok"で応答する。
func (g *Gateway) Handle(ctx context.Context, in *Interaction) *Response {
	switch in.Type {
	case InteractionPing:
		g.metrics.RecordDiscordInteraction("ping")
		return &Response{Type: ResponsePong}
	case InteractionApplicationCommand:
		g.metrics.RecordDiscordInteraction("command")
		return g.handleCommand(ctx, in)
	default:
		g.metrics.RecordDiscordInteraction("other")
		return nil
	}
}

func (g *Gateway) handleCommand(ctx context.Context, in *Interaction) *Response {
	if in.CommandName() != CommandClaim {
		return ephemeral(msgUnknownCommand)
	}

	if len(g.allowed) > 0 {
		if _, ok := g.allowed[in.ChannelID]; !ok {
			return ephemeral(msgChannelForbidden)
		}
	}

	userID := in.UserID()
	if userID == "" {
		return ephemeral(msgNoUser)
	}

	if g.config.Mode == ModeDeferred {
		appID := in.ApplicationID
		if appID == "" {
			appID = g.config.ApplicationID
		}
		g.tasks.Add(1)
		go g.runDeferred(appID, in.Token, userID)
		return &Response{
			Type: ResponseDeferredChannelMessage,
			Data: &MessageData{Flags: FlagEphemeral},
		}
	}

	return ephemeral(g.allocate(ctx, userID))
}

// runDeferred はリクエストのコンテキストから切り離して割り当てとフォローアップを行う。
// 失敗してもすでに返した応答には影響しない。
func (g *Gateway) runDeferred(applicationID, token, userID string) {
	defer g.tasks.Done()

	ctx, cancel := context.WithTimeout(context.Background(), g.config.FollowupTimeout)
	defer cancel()

	content := g.allocate(ctx, userID)
	msg := MessageData{Content: content, Flags: FlagEphemeral}
	if err := g.followups.SendFollowup(ctx, applicationID, token, msg); err != nil {
		g.logger.Error("failed to send discord followup",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// allocate はコードを割り当て、ユーザーに返すメッセージを組み立てる。
func (g *Gateway) allocate(ctx context.Context, userID string) string {
	code, err := g.allocator.AllocateCode(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrPoolExhausted):
		g.metrics.RecordDiscordAllocation("exhausted")
		g.logger.Warn("discord code pool exhausted", slog.String("user_id", userID))
		return msgPoolExhausted
	case err != nil:
		g.metrics.RecordDiscordAllocation("error")
		g.logger.Error("failed to allocate discord code",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return msgAllocationFailed
	}

	g.metrics.RecordDiscordAllocation("assigned")
	g.logger.Info("discord code allocated", slog.String("user_id", userID))

	msg := fmt.Sprintf("Your Early Access invite code: **%s**", code)
	if g.config.ClaimURL != "" {
		msg += "\nRedeem it at " + g.config.ClaimURL
	}
	return msg
}

// Wait は実行中の遅延タスクの完了を待つ。ctxが先に終了した場合はctx.Err()を返す。
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
