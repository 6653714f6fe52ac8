// Package generate は外部の生成APIを呼び出して鑑定文を生成するクライアントを提供する。
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/kiaora/internal/model"
)

// Config はClientの設定を保持する。
type Config struct {
	// Endpoint はchat completions互換APIのURL。
	Endpoint string
	// APIKey はBearerトークンとして送信される。
	APIKey string
	// Model は生成に使用するモデル名。
	Model string
	// UseAPI がfalseの場合、APIを呼ばずテンプレート鑑定文を返す（コスト節約モード）。
	UseAPI bool
}

// Client は生成APIのクライアント。
// エンドポイントは運用者が設定するため、httpClientにはSSRF防止付きの
// クライアントを渡すことを想定している。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// chatRequest はchat completions APIのリクエストボディ。
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse はchat completions APIのレスポンスボディ。
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate は質問・名前・カードから鑑定文を生成する。
// APIが無効化されている場合は決定的なテンプレート鑑定文を返す。
// 空の生成結果は("", nil)として返し、代替文の選択は呼び出し側に委ねる。
func (c *Client) Generate(ctx context.Context, question, name string, card model.Card) (string, error) {
	if !c.config.UseAPI {
		return templateReading(question, card), nil
	}

	prompt := buildPrompt(question, name, card)

	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("生成APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("生成APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("generation API returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}

	return parsed.Choices[0].Message.Content, nil
}

// buildPrompt はオラクルの鑑定プロンプトを構築する。
func buildPrompt(question, name string, card model.Card) string {
	greeting := ""
	if name != "" {
		greeting = fmt.Sprintf("The seeker's name: %q\n", name)
	}
	return fmt.Sprintf(`You are KiaOra Oracle, an intuitive Maori healer specializing in spiritual guidance.
%sUser intent/question: %q
Card Drawn: %q - %q
Create a personalized, insightful, and supportive oracle reading integrating the user's intent and the meaning of the card, using a mystical yet reassuring tone aligned with holistic Maori healing practices.
Keep your response concise (80-120 words), actionable, and warm.`,
		greeting, question, card.Name, card.Meaning)
}

// templateReading はAPI無効時の決定的な鑑定文を返す。
func templateReading(question string, card model.Card) string {
	return fmt.Sprintf("The %s card suggests %s. Consider this in relation to your question about %q. May wisdom guide your path forward.",
		card.Name, card.Meaning, question)
}
