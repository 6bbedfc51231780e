package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/plowed/claimgate/internal/discord"
	"github.com/plowed/claimgate/internal/model"
)

// maxInteractionBytes はDiscordインタラクションのリクエストボディ上限。
const maxInteractionBytes = 1 << 20

// SignatureVerifier はインタラクションの署名検証インターフェース。
type SignatureVerifier interface {
	Verify(signatureHex, timestamp string, body []byte) bool
}

// InteractionGateway はインタラクションを処理するインターフェース。
type InteractionGateway interface {
	Handle(ctx context.Context, in *discord.Interaction) *discord.Response
}

// DiscordHandler はDiscordのInteractions Endpointを処理する。
type DiscordHandler struct {
	verifier SignatureVerifier
	gateway  InteractionGateway
}

// NewDiscordHandler はDiscordHandlerを生成する。
// verifierがnilの場合、POSTには500を返す。
func NewDiscordHandler(verifier SignatureVerifier, gateway InteractionGateway) *DiscordHandler {
	return &DiscordHandler{verifier: verifier, gateway: gateway}
}

// Probe は疎通確認に200 "ok"を返す。
// GET/HEAD /webhook/command
func (h *DiscordHandler) Probe(w http.ResponseWriter, r *http.Request) {
	writeOK(w)
}

// Interactions は署名を検証してからインタラクションを処理する。
// POST /webhook/command
func (h *DiscordHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || h.gateway == nil {
		slog.Error("discord interaction received but public key is not configured")
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInteractionBytes))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	sig := r.Header.Get(discord.HeaderSignature)
	ts := r.Header.Get(discord.HeaderTimestamp)
	if sig == "" || ts == "" || !h.verifier.Verify(sig, ts, body) {
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	resp := h.gateway.Handle(r.Context(), &in)
	if resp == nil {
		writeOK(w)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}
