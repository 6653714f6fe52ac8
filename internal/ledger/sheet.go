package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/kiaora/internal/model"
)

// SheetStore はリモートのスプレッドシート型APIを台帳として使用するストア。
// シートの1行が1レコード（email, name, updated_at）に対応し、identityは行番号。
//
// APIの想定:
//
//	GET  {endpoint}/rows?email=...  -> 200 {"row": n, "email": ..., "name": ..., "updated_at": ...} / 404
//	POST {endpoint}/rows            -> 行を追記
//	PUT  {endpoint}/rows/{n}        -> 指定行を上書き
type SheetStore struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	apiKey     string
}

// NewSheetStore はSheetStoreを生成する。
// httpClientにはsecurity.NewSafeClientで生成したSSRF防止付きクライアントを渡すこと
// （エンドポイントは運用者が設定するため）。
func NewSheetStore(httpClient *http.Client, logger *slog.Logger, endpoint, apiKey string) *SheetStore {
	return &SheetStore{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// sheetRow はシートAPIの1行のJSON表現。
type sheetRow struct {
	Row       int    `json:"row,omitempty"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
}

// FindByEmail は指定メールアドレスの行を取得する。見つからない場合はnilを返す。
func (s *SheetStore) FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error) {
	q := url.Values{}
	q.Set("email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create sheet request: %v", ErrStoreUnavailable, err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet API request failed: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sheet API returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	var row sheetRow
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: failed to decode sheet response: %v", ErrStoreUnavailable, err)
	}

	// タイムスタンプが解釈できない行はゼロ値の日時として扱う
	at, parseErr := time.Parse(time.RFC3339, row.UpdatedAt)
	if parseErr != nil {
		s.logger.Warn("台帳行のタイムスタンプを解釈できません",
			slog.String("email", email),
			slog.String("updated_at", row.UpdatedAt),
		)
		at = time.Time{}
	}

	return &model.ConsultationRecord{
		Email:           row.Email,
		Name:            row.Name,
		LastConsultedAt: at,
		Identity:        fmt.Sprintf("%d", row.Row),
	}, nil
}

// Upsert は行を追記または上書き更新する。
// identityが既知の場合はPUTでその行を正確に上書きし、未知の場合はPOSTで追記する。
func (s *SheetStore) Upsert(ctx context.Context, email, name string, at time.Time, identity string) error {
	body, err := json.Marshal(sheetRow{
		Email:     email,
		Name:      name,
		UpdatedAt: at.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode sheet row: %w", err)
	}

	method := http.MethodPost
	url := s.endpoint + "/rows"
	if identity != "" && identity != "0" {
		method = http.MethodPut
		url = s.endpoint + "/rows/" + identity
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create sheet request: %v", ErrStoreUnavailable, err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sheet API request failed: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: sheet API returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	return nil
}

// setHeaders は共通リクエストヘッダーを設定する。
func (s *SheetStore) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "KiaOra/1.0 Oracle Service")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

// compile-time interface check
var _ Store = (*SheetStore)(nil)
