// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, ratelimit, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingQuestion       = "MISSING_QUESTION"
	ErrCodeAlreadyConsultedToday = "ALREADY_CONSULTED_TODAY"
	ErrCodeUnknownCard           = "UNKNOWN_CARD"
	ErrCodeInvalidEmail          = "INVALID_EMAIL"
	ErrCodeLedgerWriteFailed     = "LEDGER_WRITE_FAILED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
)

// NewMissingQuestionError は質問未入力エラーを生成する。
func NewMissingQuestionError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingQuestion,
		Message:  "質問が入力されていません。",
		Category: "validation",
		Action:   "オラクルに尋ねたい質問を入力してください。",
	}
}

// NewAlreadyConsultedTodayError は同日再鑑定エラーを生成する。
// 鑑定は1メールアドレスにつき1暦日1回まで。
func NewAlreadyConsultedTodayError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyConsultedToday,
		Message:  "本日はすでにオラクルの鑑定を受けています。",
		Category: "ratelimit",
		Action:   "新しい導きを受けるには、明日改めてお越しください。",
	}
}

// NewUnknownCardError はカタログに存在しないカードが指定された場合のエラーを生成する。
func NewUnknownCardError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCard,
		Message:  fmt.Sprintf("指定されたカードはカタログに存在しません: %s", name),
		Category: "validation",
		Action:   "カード指定を外すか、正しいカード名を指定してください。",
	}
}

// NewInvalidEmailError は不正なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("メールアドレスの形式が正しくありません: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解釈失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの形式が正しくありません。",
		Category: "validation",
		Action:   "リクエストボディをJSON形式で送信してください。",
	}
}

// NewLedgerWriteFailedError は台帳への書き込み失敗エラーを生成する。
// 書き込み失敗時は鑑定結果を返さない（フェイルクローズ）。
func NewLedgerWriteFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLedgerWriteFailed,
		Message:  "鑑定記録の保存に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
