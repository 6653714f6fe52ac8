package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/kiaora/internal/model"
)

// FileStore はフラットな区切りレコードファイル（CSV）を使用した台帳ストア。
// 1行が1レコード（email, name, last_consulted_at のRFC3339表記）に対応する。
// identityは1始まりの行位置。更新はファイル全体を書き直し、一時ファイル経由の
// renameで差し替えるため、途中失敗で壊れた台帳が残ることはない。
// 小規模運用向けであり、プロセス内の排他はmutexで行う。
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore は指定パスのCSVファイルを台帳として使用するFileStoreを生成する。
// ファイルは最初のUpsert時に作成される。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// FindByEmail は指定メールアドレスの台帳レコードを取得する。見つからない場合はnilを返す。
// ファイルが存在しない場合は未作成の台帳として扱い、nilを返す。
func (s *FileStore) FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		if row.email == email {
			return &model.ConsultationRecord{
				Email:           row.email,
				Name:            row.name,
				LastConsultedAt: row.at,
				Identity:        strconv.Itoa(i + 1),
			}, nil
		}
	}

	return nil, nil
}

// Upsert は台帳レコードを作成または上書き更新する。
// identityが既知の場合はその行位置を直接上書きし、未知の場合はメールアドレスで
// 既存行を探して上書き、なければ末尾に追記する。
func (s *FileStore) Upsert(ctx context.Context, email, name string, at time.Time, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return err
	}

	newRow := fileRow{email: email, name: name, at: at}
	replaced := false

	if identity != "" {
		if pos, convErr := strconv.Atoi(identity); convErr == nil && pos >= 1 && pos <= len(rows) {
			rows[pos-1] = newRow
			replaced = true
		}
	}
	if !replaced {
		for i, row := range rows {
			if row.email == email {
				rows[i] = newRow
				replaced = true
				break
			}
		}
	}
	if !replaced {
		rows = append(rows, newRow)
	}

	return s.writeAll(rows)
}

// fileRow はCSVファイル上の1レコード。
type fileRow struct {
	email string
	name  string
	at    time.Time
}

// readAll は台帳ファイル全体を読み込む。
// タイムスタンプが解釈できない行はゼロ値の日時として保持する
// （過去データの破損でユーザーを締め出さないため）。
func (s *FileStore) readAll() ([]fileRow, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open ledger file: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger file: %v", ErrStoreUnavailable, err)
	}

	rows := make([]fileRow, 0, len(records))
	for _, rec := range records {
		if len(rec) < 3 {
			continue
		}
		at, _ := time.Parse(time.RFC3339, rec[2])
		rows = append(rows, fileRow{email: rec[0], name: rec[1], at: at})
	}

	return rows, nil
}

// writeAll は全レコードを一時ファイルに書き出し、renameで台帳ファイルを差し替える。
func (s *FileStore) writeAll(rows []fileRow) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp ledger file: %v", ErrStoreUnavailable, err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	for _, row := range rows {
		if err := w.Write([]string{row.email, row.name, row.at.Format(time.RFC3339)}); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: failed to write ledger record: %v", ErrStoreUnavailable, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to flush ledger file: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close temp ledger file: %v", ErrStoreUnavailable, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to replace ledger file: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// compile-time interface check
var _ Store = (*FileStore)(nil)
