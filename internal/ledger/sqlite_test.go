package ledger

import (
	"context"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSQLiteStore_FindByEmail_NotFound は未登録アドレスで(nil, nil)を返すことを検証する。
func TestSQLiteStore_FindByEmail_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	rec, err := s.FindByEmail(context.Background(), "nobody@x.com")
	if err != nil {
		t.Fatalf("FindByEmail がエラーを返した: %v", err)
	}
	if rec != nil {
		t.Errorf("未登録アドレスではnilを返すべき, got %+v", rec)
	}
}

// TestSQLiteStore_UpsertThenFind は作成したレコードが読み戻せることを検証する。
func TestSQLiteStore_UpsertThenFind(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	if err := s.Upsert(ctx, "a@x.com", "A", at, ""); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, err := s.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if rec == nil {
		t.Fatal("作成したレコードが見つからない")
	}
	if rec.Identity == "" {
		t.Error("リレーショナルバックエンドのIdentityはUUIDであるべき")
	}
	if !rec.LastConsultedAt.Equal(at) {
		t.Errorf("LastConsultedAt = %v, want %v", rec.LastConsultedAt, at)
	}
}

// TestSQLiteStore_Upsert_UpdateNotDuplicate は異なる日の2回のUpsertで
// レコードが1行のままタイムスタンプだけ更新されることを検証する。
func TestSQLiteStore_Upsert_UpdateNotDuplicate(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	if err := s.Upsert(ctx, "a@x.com", "A", day1, ""); err != nil {
		t.Fatalf("初回Upsert: %v", err)
	}

	rec, err := s.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}

	if err := s.Upsert(ctx, "a@x.com", "A", day2, rec.Identity); err != nil {
		t.Fatalf("2回目Upsert: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM consultation_ledger WHERE email = ?`, "a@x.com").Scan(&count); err != nil {
		t.Fatalf("COUNT: %v", err)
	}
	if count != 1 {
		t.Errorf("レコード数 = %d, want 1", count)
	}

	updated, err := s.FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("更新後FindByEmail: %v", err)
	}
	if !updated.LastConsultedAt.Equal(day2) {
		t.Errorf("LastConsultedAt = %v, want %v", updated.LastConsultedAt, day2)
	}
	if updated.Identity != rec.Identity {
		t.Errorf("Identityが更新で変わってはならない: %q -> %q", rec.Identity, updated.Identity)
	}
}

// TestSQLiteStore_Upsert_ConflictOnEmail はidentityなしの並行的な二重Upsertでも
// email一意制約により1行に収束することを検証する。
func TestSQLiteStore_Upsert_ConflictOnEmail(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// 両リクエストが「レコードなし」を観測した後のUpsertを模す
	if err := s.Upsert(ctx, "a@x.com", "A", at, ""); err != nil {
		t.Fatalf("1回目Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "a@x.com", "A", at.Add(time.Minute), ""); err != nil {
		t.Fatalf("2回目Upsert: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM consultation_ledger`).Scan(&count); err != nil {
		t.Fatalf("COUNT: %v", err)
	}
	if count != 1 {
		t.Errorf("レコード数 = %d, want 1", count)
	}
}

// TestSQLiteStore_AppendConsultation は鑑定控えが追記専用で複数件残ることを検証する。
func TestSQLiteStore_AppendConsultation(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := s.AppendConsultation(ctx, ArchiveEntry{
			Question:    "What should I focus on?",
			Response:    "reading",
			CardName:    "Aroha",
			CardMeaning: "Love, compassion, and empathy",
			Email:       "a@x.com",
			CreatedAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendConsultation: %v", err)
		}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM consultations WHERE email = ?`, "a@x.com").Scan(&count); err != nil {
		t.Fatalf("COUNT: %v", err)
	}
	if count != 2 {
		t.Errorf("控えの件数 = %d, want 2", count)
	}
}
