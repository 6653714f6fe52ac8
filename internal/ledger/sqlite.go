package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqliteドライバの登録

	"github.com/hitoshi/kiaora/internal/model"
)

// sqliteSchema はSQLiteバックエンドのスキーマ。接続時に冪等に適用される。
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS consultation_ledger (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	last_consulted_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS consultations (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	response TEXT NOT NULL,
	card_name TEXT NOT NULL DEFAULT '',
	card_meaning TEXT NOT NULL DEFAULT '',
	email TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_consultations_email ON consultations(email);
`

// SQLiteStore はSQLiteを使用した組み込み型の台帳ストア。
// 単一プロセス運用向けで、外部DBなしで永続化できる。
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore はSQLiteデータベースを開き、スキーマを適用してストアを生成する。
// dsnにはファイルパスまたは":memory:"を指定する。
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PingContext はヘルスチェック用にデータベースへの疎通を確認する。
func (s *SQLiteStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindByEmail は指定メールアドレスの台帳レコードを取得する。見つからない場合はnilを返す。
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error) {
	rec := &model.ConsultationRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, last_consulted_at FROM consultation_ledger WHERE email = ?`,
		email,
	).Scan(&rec.Identity, &rec.Email, &rec.Name, &rec.LastConsultedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find ledger record by email: %v", ErrStoreUnavailable, err)
	}

	return rec, nil
}

// Upsert は台帳レコードを作成または上書き更新する。
func (s *SQLiteStore) Upsert(ctx context.Context, email, name string, at time.Time, identity string) error {
	if identity != "" {
		result, err := s.db.ExecContext(ctx,
			`UPDATE consultation_ledger SET name = ?, last_consulted_at = ? WHERE id = ?`,
			name, at, identity,
		)
		if err != nil {
			return fmt.Errorf("%w: failed to update ledger record: %v", ErrStoreUnavailable, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: failed to get rows affected: %v", ErrStoreUnavailable, err)
		}
		if rows > 0 {
			return nil
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultation_ledger (id, email, name, last_consulted_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET name = excluded.name, last_consulted_at = excluded.last_consulted_at`,
		uuid.NewString(), email, name, at,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert ledger record: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// AppendConsultation は鑑定控えをconsultationsテーブルに追記する。
func (s *SQLiteStore) AppendConsultation(ctx context.Context, entry ArchiveEntry) error {
	var email sql.NullString
	if entry.Email != "" {
		email = sql.NullString{String: entry.Email, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, question, response, card_name, card_meaning, email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), entry.Question, entry.Response, entry.CardName, entry.CardMeaning, email, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append consultation: %w", err)
	}

	return nil
}

// compile-time interface check
var (
	_ Store    = (*SQLiteStore)(nil)
	_ Archiver = (*SQLiteStore)(nil)
)
