// Package eligibility は1暦日1回の鑑定制限の判定を提供する。
package eligibility

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/kiaora/internal/ledger"
)

// Checker はメールアドレスが本日鑑定を受けられるかを判定する。
// 「同日」の判定はローリング24時間ではなく、設定されたタイムゾーンにおける
// 暦日（年・月・日）の一致で行う。
type Checker struct {
	store  ledger.Store
	loc    *time.Location
	logger *slog.Logger

	// now はテストで時刻を固定するために差し替え可能
	now func() time.Time
}

// NewChecker はCheckerを生成する。
// locには設定済みタイムゾーンを渡す（ホストのローカルタイムに依存しない）。
func NewChecker(store ledger.Store, loc *time.Location, logger *slog.Logger) *Checker {
	return &Checker{
		store:  store,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// IsEligible は指定メールアドレスが本日鑑定を受けられるかを返す。
//
// 台帳にレコードがなければ鑑定可能。台帳の読み取りに失敗した場合は
// フェイルオープン（鑑定可能扱い）とし、障害で正当なユーザーを
// 締め出さない。警告ログのみ残す。
// 保存されたタイムスタンプがゼロ値（欠損・解釈不能）の場合も鑑定可能とする。
func (c *Checker) IsEligible(ctx context.Context, email string) bool {
	rec, err := c.store.FindByEmail(ctx, email)
	if err != nil {
		c.logger.Warn("台帳の読み取りに失敗したため鑑定可能として続行します",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return true
	}
	if rec == nil {
		return true
	}
	if rec.LastConsultedAt.IsZero() {
		return true
	}

	return !c.sameCalendarDay(rec.LastConsultedAt, c.now())
}

// sameCalendarDay は2つの日時が設定タイムゾーンで同一の暦日かを判定する。
func (c *Checker) sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.In(c.loc).Date()
	by, bm, bd := b.In(c.loc).Date()
	return ay == by && am == bm && ad == bd
}
