// Package ledger は鑑定台帳の永続化インターフェースと交換可能なバックエンド実装を提供する。
//
// 台帳は1メールアドレスにつき高々1レコードを保持し、最後に鑑定を受けた日時を
// 上書きで記録する。バックエンドはフラットファイル、リモートスプレッドシートAPI、
// PostgreSQL、SQLiteのいずれかであり、呼び出し側はどれが使われているかを知らない。
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/kiaora/internal/model"
)

// ErrStoreUnavailable はバックエンドに到達できないことを表すセンチネルエラー。
// 呼び出し側はerrors.Isで判定する。読み取りではフェイルオープン（鑑定可能扱い）、
// 書き込みではフェイルクローズ（リクエスト失敗）のポリシーが適用される。
var ErrStoreUnavailable = errors.New("ledger store unavailable")

// Store は鑑定台帳の永続化インターフェース。
type Store interface {
	// FindByEmail は指定メールアドレスの台帳レコードを取得する。
	// 見つからない場合は(nil, nil)を返す。
	// バックエンドに到達できない場合はErrStoreUnavailableをラップしたエラーを返す。
	FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error)

	// Upsert は台帳レコードを作成または上書き更新する。
	// identityが空でない場合は、そのロケータが指すレコードを正確に更新する。
	// 空の場合は新規レコードを作成する（メールアドレスの一意性は保たれる）。
	Upsert(ctx context.Context, email, name string, at time.Time, identity string) error
}

// ArchiveEntry は完了した鑑定1件の控えを表す。
// 台帳と異なり追記専用で、同一メールアドレスの複数エントリを許容する。
type ArchiveEntry struct {
	Question    string
	Response    string
	CardName    string
	CardMeaning string
	Email       string
	CreatedAt   time.Time
}

// Archiver は鑑定控えの追記インターフェース。
// リレーショナルバックエンドのみが実装する。書き込み失敗は呼び出し側で
// ログに記録され、鑑定結果には影響しない。
type Archiver interface {
	// AppendConsultation は鑑定控えを1件追記する。
	AppendConsultation(ctx context.Context, entry ArchiveEntry) error
}
