package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/kiaora/internal/ceremony"
	"github.com/hitoshi/kiaora/internal/middleware"
	"github.com/hitoshi/kiaora/internal/model"
)

// CeremonyHandler はシャッフル儀式の進行をServer-Sent Eventsで配信する。
// フロントエンドはこのイベント列に合わせてシャッフル演出を描画する。
type CeremonyHandler struct {
	newMachine func() *ceremony.Machine
	logger     *slog.Logger
}

// NewCeremonyHandler はCeremonyHandlerを生成する。
func NewCeremonyHandler(newMachine func() *ceremony.Machine, logger *slog.Logger) *CeremonyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CeremonyHandler{
		newMachine: newMachine,
		logger:     logger,
	}
}

// Stream はGET /api/ceremony のハンドラ。
// 儀式の各フェーズをSSEイベントとして順に送出し、完了後に接続を閉じる。
func (h *CeremonyHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "ストリーミングに対応していません。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	machine := h.newMachine()
	err := machine.Run(r.Context(), func(p ceremony.Phase) {
		fmt.Fprintf(w, "event: phase\ndata: %s\n\n", p)
		flusher.Flush()
	})
	if err != nil {
		// クライアント切断時はここに到達する。ストリームは既に開始済みのため応答は変更しない。
		h.logger.Info("ceremony stream ended early", slog.String("error", err.Error()))
	}
}
