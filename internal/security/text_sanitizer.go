// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザー入力の質問文と生成された鑑定文をサニタイズし、
// 通知メールのHTML本文に埋め込む際のインジェクションを防ぐ。
// bluemondayのStrictPolicyにより、HTMLタグは一切通過させない。
package security

import "github.com/microcosm-cc/bluemonday"

// TextSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// メール本文の組み立て時に使用される。
type TextSanitizerService interface {
	// Sanitize は入力テキストから全てのHTMLタグを除去して返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。質問文と鑑定文はプレーンテキストとして
// 扱い、HTMLとしての表現力は必要ないため許可タグはない。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストから全てのHTMLタグを除去して返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
