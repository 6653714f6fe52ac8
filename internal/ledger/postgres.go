package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/kiaora/internal/model"
)

// PostgresStore はPostgreSQLを使用した台帳ストア。
// スキーマはinternal/databaseのマイグレーションで管理される。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByEmail は指定メールアドレスの台帳レコードを取得する。見つからない場合はnilを返す。
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error) {
	rec := &model.ConsultationRecord{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, last_consulted_at FROM consultation_ledger WHERE email = $1`,
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
// identityが既知の場合はそのレコードをUPDATEし、未知の場合はINSERTする。
// emailにはUNIQUE制約があるため、並行リクエストが二重に読み取っても
// レコードが2行になることはない。
func (s *PostgresStore) Upsert(ctx context.Context, email, name string, at time.Time, identity string) error {
	if identity != "" {
		result, err := s.db.ExecContext(ctx,
			`UPDATE consultation_ledger SET name = $1, last_consulted_at = $2 WHERE id = $3`,
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
		// ロケータが指すレコードが消えている場合は作成にフォールスルー
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultation_ledger (id, email, name, last_consulted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, last_consulted_at = EXCLUDED.last_consulted_at`,
		uuid.NewString(), email, name, at,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert ledger record: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// AppendConsultation は鑑定控えをconsultationsテーブルに追記する。
func (s *PostgresStore) AppendConsultation(ctx context.Context, entry ArchiveEntry) error {
	var email sql.NullString
	if entry.Email != "" {
		email = sql.NullString{String: entry.Email, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consultations (id, question, response, card_name, card_meaning, email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), entry.Question, entry.Response, entry.CardName, entry.CardMeaning, email, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append consultation: %w", err)
	}

	return nil
}

// compile-time interface check
var (
	_ Store    = (*PostgresStore)(nil)
	_ Archiver = (*PostgresStore)(nil)
)
