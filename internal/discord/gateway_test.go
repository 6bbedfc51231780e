package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plowed/claimgate/internal/repository"
)

// --- モック ---

type mockAllocator struct {
	mu         sync.Mutex
	calls      []string
	allocateFn func(ctx context.Context, userID string) (string, error)
}

func (m *mockAllocator) AllocateCode(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, userID)
	m.mu.Unlock()
	if m.allocateFn != nil {
		return m.allocateFn(ctx, userID)
	}
	return "PLOW-0001", nil
}

type sentFollowup struct {
	applicationID string
	token         string
	msg           MessageData
}

type mockSender struct {
	sent   chan sentFollowup
	sendFn func(ctx context.Context, applicationID, token string, msg MessageData) error
}

func newMockSender() *mockSender {
	return &mockSender{sent: make(chan sentFollowup, 4)}
}

func (m *mockSender) SendFollowup(ctx context.Context, applicationID, token string, msg MessageData) error {
	m.sent <- sentFollowup{applicationID, token, msg}
	if m.sendFn != nil {
		return m.sendFn(ctx, applicationID, token, msg)
	}
	return nil
}

// compile-time interface checks
var _ CodeAllocator = (*mockAllocator)(nil)
var _ CodeAllocator = (repository.DiscordPoolRepository)(nil)
var _ FollowupSender = (*mockSender)(nil)
var _ FollowupSender = (*FollowupClient)(nil)

func claimCommand(userID, channelID string) *Interaction {
	return &Interaction{
		Type:          InteractionApplicationCommand,
		ApplicationID: "app-1",
		Token:         "tok-1",
		ChannelID:     channelID,
		Data:          &CommandData{Name: CommandClaim},
		Member:        &Member{User: &User{ID: userID}},
	}
}

func TestGateway_Ping(t *testing.T) {
	g := NewGateway(&mockAllocator{}, newMockSender(), GatewayConfig{}, nil, testLogger())

	resp := g.Handle(context.Background(), &Interaction{Type: InteractionPing})
	if resp == nil || resp.Type != ResponsePong || resp.Data != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGateway_OtherTypeReturnsNil(t *testing.T) {
	g := NewGateway(&mockAllocator{}, newMockSender(), GatewayConfig{}, nil, testLogger())

	if resp := g.Handle(context.Background(), &Interaction{Type: 3}); resp != nil {
		t.Errorf("expected nil, got %+v", resp)
	}
}

func TestGateway_UnknownCommand(t *testing.T) {
	alloc := &mockAllocator{}
	g := NewGateway(alloc, newMockSender(), GatewayConfig{}, nil, testLogger())

	in := claimCommand("u1", "c1")
	in.Data.Name = "whoami"
	resp := g.Handle(context.Background(), in)

	if resp.Type != ResponseChannelMessage || resp.Data.Content != "Unknown command." || resp.Data.Flags != FlagEphemeral {
		t.Errorf("unexpected response %+v %+v", resp, resp.Data)
	}
	if len(alloc.calls) != 0 {
		t.Error("allocator should not be called")
	}
}

func TestGateway_Sync_AllocatesAndReplies(t *testing.T) {
	alloc := &mockAllocator{}
	g := NewGateway(alloc, newMockSender(), GatewayConfig{Mode: ModeSync, ClaimURL: "https://access.example.com"}, nil, testLogger())

	resp := g.Handle(context.Background(), claimCommand("u1", "c1"))

	if resp.Type != ResponseChannelMessage || resp.Data.Flags != FlagEphemeral {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.Contains(resp.Data.Content, "PLOW-0001") {
		t.Errorf("content should include code, got %q", resp.Data.Content)
	}
	if !strings.Contains(resp.Data.Content, "https://access.example.com") {
		t.Errorf("content should include claim url, got %q", resp.Data.Content)
	}
	if len(alloc.calls) != 1 || alloc.calls[0] != "u1" {
		t.Errorf("allocator calls = %v", alloc.calls)
	}
}

func TestGateway_Sync_AllocationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"pool exhausted", repository.ErrPoolExhausted, msgPoolExhausted},
		{"store error", errors.New("connection refused"), msgAllocationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := &mockAllocator{allocateFn: func(context.Context, string) (string, error) { return "", tt.err }}
			g := NewGateway(alloc, newMockSender(), GatewayConfig{}, nil, testLogger())

			resp := g.Handle(context.Background(), claimCommand("u1", "c1"))
			if resp.Data.Content != tt.want {
				t.Errorf("content = %q, want %q", resp.Data.Content, tt.want)
			}
		})
	}
}

func TestGateway_ChannelAllowList(t *testing.T) {
	alloc := &mockAllocator{}
	g := NewGateway(alloc, newMockSender(), GatewayConfig{AllowedChannelIDs: []string{"allowed"}}, nil, testLogger())

	resp := g.Handle(context.Background(), claimCommand("u1", "elsewhere"))
	if resp.Data.Content != msgChannelForbidden {
		t.Errorf("content = %q", resp.Data.Content)
	}
	if len(alloc.calls) != 0 {
		t.Error("allocator should not be called outside allowed channels")
	}

	resp = g.Handle(context.Background(), claimCommand("u1", "allowed"))
	if !strings.Contains(resp.Data.Content, "PLOW-0001") {
		t.Errorf("content = %q", resp.Data.Content)
	}
}

func TestGateway_DirectMessageUser(t *testing.T) {
	alloc := &mockAllocator{}
	g := NewGateway(alloc, newMockSender(), GatewayConfig{}, nil, testLogger())

	in := claimCommand("", "c1")
	in.Member = nil
	in.User = &User{ID: "dm-user"}
	g.Handle(context.Background(), in)

	if len(alloc.calls) != 1 || alloc.calls[0] != "dm-user" {
		t.Errorf("allocator calls = %v", alloc.calls)
	}
}

func TestGateway_NoUser(t *testing.T) {
	g := NewGateway(&mockAllocator{}, newMockSender(), GatewayConfig{}, nil, testLogger())

	in := claimCommand("", "c1")
	in.Member = nil
	resp := g.Handle(context.Background(), in)
	if resp.Data.Content != msgNoUser {
		t.Errorf("content = %q", resp.Data.Content)
	}
}

func TestGateway_Deferred_AcksThenSendsFollowup(t *testing.T) {
	release := make(chan struct{})
	alloc := &mockAllocator{allocateFn: func(context.Context, string) (string, error) {
		<-release
		return "PLOW-0042", nil
	}}
	sender := newMockSender()
	g := NewGateway(alloc, sender, GatewayConfig{Mode: ModeDeferred}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	resp := g.Handle(ctx, claimCommand("u1", "c1"))
	// リクエストのコンテキストが終了しても遅延タスクは継続する
	cancel()

	if resp.Type != ResponseDeferredChannelMessage || resp.Data == nil || resp.Data.Flags != FlagEphemeral {
		t.Fatalf("unexpected ack %+v", resp)
	}

	close(release)

	select {
	case got := <-sender.sent:
		if got.applicationID != "app-1" || got.token != "tok-1" {
			t.Errorf("followup target = %s/%s", got.applicationID, got.token)
		}
		if !strings.Contains(got.msg.Content, "PLOW-0042") {
			t.Errorf("followup content = %q", got.msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("followup was not sent")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := g.Wait(waitCtx); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestGateway_Deferred_FailureSendsErrorFollowup(t *testing.T) {
	alloc := &mockAllocator{allocateFn: func(context.Context, string) (string, error) {
		return "", repository.ErrPoolExhausted
	}}
	sender := newMockSender()
	sender.sendFn = func(context.Context, string, string, MessageData) error {
		return errors.New("discord unavailable")
	}
	g := NewGateway(alloc, sender, GatewayConfig{Mode: ModeDeferred, ApplicationID: "cfg-app"}, nil, testLogger())

	in := claimCommand("u1", "c1")
	in.ApplicationID = ""
	resp := g.Handle(context.Background(), in)
	if resp.Type != ResponseDeferredChannelMessage {
		t.Fatalf("ack type = %d", resp.Type)
	}

	select {
	case got := <-sender.sent:
		if got.applicationID != "cfg-app" {
			t.Errorf("application id = %q, want cfg-app", got.applicationID)
		}
		if got.msg.Content != msgPoolExhausted {
			t.Errorf("content = %q", got.msg.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error followup was not attempted")
	}

	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestGateway_Wait_RespectsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	alloc := &mockAllocator{allocateFn: func(context.Context, string) (string, error) {
		<-block
		return "X", nil
	}}
	g := NewGateway(alloc, newMockSender(), GatewayConfig{Mode: ModeDeferred}, nil, testLogger())
	g.Handle(context.Background(), claimCommand("u1", "c1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}
