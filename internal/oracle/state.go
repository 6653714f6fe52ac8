package oracle

// State は1件の鑑定リクエストが辿る処理段階を表す。
// 正常系はReceivedからCompletedまで一方向に進み、
// RejectedとFailedはCompleted到達前の任意の段階から遷移しうる終端状態。
type State string

const (
	// StateReceived はリクエストを受理した初期状態。
	StateReceived State = "received"
	// StateValidated は質問文とメールアドレスの検証を通過した状態。
	StateValidated State = "validated"
	// StateEligibilityChecked は当日鑑定済みチェックを通過した状態。
	StateEligibilityChecked State = "eligibility_checked"
	// StateCardSelected はカードが確定した状態。
	StateCardSelected State = "card_selected"
	// StateReadingGenerated は鑑定文が確定した状態（フォールバック文を含む）。
	StateReadingGenerated State = "reading_generated"
	// StateRecorded は台帳への記録が完了した状態。
	StateRecorded State = "recorded"
	// StateNotified は通知の送信を開始した状態。送達の成否は問わない。
	StateNotified State = "notified"
	// StateCompleted は鑑定結果を呼び出し側に返せる終端状態。
	StateCompleted State = "completed"

	// StateRejected は入力不備またはレート制限による拒否の終端状態。
	StateRejected State = "rejected"
	// StateFailed はシステム起因の失敗の終端状態。
	StateFailed State = "failed"
)
