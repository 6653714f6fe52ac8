package model

import "time"

// ConsultationRecord は台帳に保持される、メールアドレスごとの最新の鑑定記録を表す。
// 1メールアドレスにつき高々1レコードであり、LastConsultedAt は履歴として
// 追記されず、常に最新の日時で上書きされる。
type ConsultationRecord struct {
	Email           string
	Name            string
	LastConsultedAt time.Time

	// Identity はバックエンドが更新対象レコードを特定するための不透明なロケータ。
	// リレーショナルバックエンドではUUID、スプレッドシートバックエンドでは行番号。
	// 未作成レコードでは空文字列。
	Identity string
}

// ConsultationRequest は1回の鑑定リクエストの入力を表す。
// Question は必須。Card が指定された場合はシャッフルせずそのカードを使用する。
// Email が空の場合、台帳への記録と通知は行われない。
type ConsultationRequest struct {
	Question string
	Card     *Card
	Email    string
	Name     string
}

// ConsultationResult は鑑定の結果を表す。
type ConsultationResult struct {
	Response string
	Card     Card
}
