// Package notify は鑑定結果の通知メール送信を提供する。
// Resend互換のメールAPIを使用する。送信はベストエフォートであり、
// 失敗しても鑑定リクエストの結果には影響しない。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/kiaora/internal/security"
)

// defaultEndpoint はResendのメール送信APIのエンドポイント。
const defaultEndpoint = "https://api.resend.com/emails"

// Config はMailerの設定を保持する。
type Config struct {
	// APIKey はResend APIのBearerトークン。
	APIKey string
	// SenderEmail は送信元アドレス。
	SenderEmail string
	// RedirectTo が空でない場合、全メールをこのアドレスに送る（開発環境用）。
	// Resendの送信先制限を回避しつつ、本来の宛先はログに残す。
	RedirectTo string
}

// Mailer は鑑定結果の通知メールを送信するクライアント。
type Mailer struct {
	httpClient *http.Client
	logger     *slog.Logger
	sanitizer  security.TextSanitizerService
	config     Config
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewMailer はMailerの新しいインスタンスを生成する。
func NewMailer(httpClient *http.Client, logger *slog.Logger, sanitizer security.TextSanitizerService, config Config) *Mailer {
	return &Mailer{
		httpClient: httpClient,
		logger:     logger,
		sanitizer:  sanitizer,
		config:     config,
		endpoint:   defaultEndpoint,
	}
}

// sendRequest はResendメール送信APIのリクエストボディ。
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendConsultation は鑑定結果をHTMLメールで送信する。
// 質問文と鑑定文はHTML本文に埋め込む前にサニタイズされる。
// RedirectToが設定されている場合は宛先を差し替え、本来の宛先をログに残す。
func (m *Mailer) SendConsultation(ctx context.Context, email, question, readingText, name string) error {
	recipient := email
	if m.config.RedirectTo != "" && email != m.config.RedirectTo {
		m.logger.Info("開発モードのため通知メールの宛先を差し替えます",
			slog.String("original_to", email),
			slog.String("redirect_to", m.config.RedirectTo),
		)
		recipient = m.config.RedirectTo
	}

	body, err := json.Marshal(sendRequest{
		From:    fmt.Sprintf("KiaOra Oracle <%s>", m.config.SenderEmail),
		To:      []string{recipient},
		Subject: "Your Oracle Consultation",
		HTML:    m.buildHTML(question, readingText),
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.config.APIKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, string(raw))
	}

	m.logger.Info("通知メールを送信しました",
		slog.String("to", recipient),
	)
	return nil
}

// buildHTML は通知メールのHTML本文を組み立てる。
// 埋め込むテキストはすべてサニタイズ済みのものを使用する。
func (m *Mailer) buildHTML(question, readingText string) string {
	q := m.sanitizer.Sanitize(question)
	r := m.sanitizer.Sanitize(readingText)

	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #333;">
  <h1 style="color: #4B0082; text-align: center;">KiaOra Oracle</h1>
  <div style="background-color: #1A1F4D; color: #F5F5F5; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h2 style="color: #DAA520; margin-top: 0;">Your Question</h2>
    <p style="color: #D3D3D3;">%s</p>
    <h2 style="color: #DAA520; margin-top: 20px;">The Oracle's Response</h2>
    <p style="color: #F5F5F5;">%s</p>
  </div>
  <p style="text-align: center; color: #666; font-size: 14px;">
    &copy; %d KiaOra Oracle | Mystical Guidance for the Modern Seeker
  </p>
</div>`, q, r, time.Now().Year())
}
