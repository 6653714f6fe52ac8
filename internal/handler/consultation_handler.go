// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/kiaora/internal/middleware"
	"github.com/hitoshi/kiaora/internal/model"
)

// ConsultationServiceInterface は鑑定ハンドラーが必要とするサービスインターフェース。
type ConsultationServiceInterface interface {
	// Consult は1件の鑑定リクエストを処理して鑑定結果を返す。
	Consult(ctx context.Context, req model.ConsultationRequest) (*model.ConsultationResult, error)
}

// ConsultationHandler は鑑定のHTTPハンドラー。
type ConsultationHandler struct {
	service ConsultationServiceInterface
}

// NewConsultationHandler はConsultationHandlerを生成する。
func NewConsultationHandler(service ConsultationServiceInterface) *ConsultationHandler {
	return &ConsultationHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// consultationRequest は鑑定リクエストのボディ。
// cardは任意で、指定された場合はシャッフルの代わりにそのカードで鑑定する。
type consultationRequest struct {
	Question string `json:"question"`
	Card     string `json:"card,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// cardResponse は引かれたカードのレスポンス表現。
type cardResponse struct {
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
	Image   string `json:"image"`
}

// consultationResponse は鑑定結果のレスポンス。
type consultationResponse struct {
	Response string       `json:"response"`
	Card     cardResponse `json:"card"`
}

// Consult は鑑定リクエストを受け付ける。
// POST /api/consultations
func (h *ConsultationHandler) Consult(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	serviceReq := model.ConsultationRequest{
		Question: req.Question,
		Email:    req.Email,
		Name:     req.Name,
	}
	if req.Card != "" {
		serviceReq.Card = &model.Card{Name: req.Card}
	}

	result, err := h.service.Consult(r.Context(), serviceReq)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consultationResponse{
		Response: result.Response,
		Card: cardResponse{
			Name:    result.Card.Name,
			Meaning: result.Card.Meaning,
			Image:   result.Card.Image,
		},
	})
}
