// Package oracle は鑑定リクエストの一連の処理を統括するドメインロジックを提供する。
//
// 1リクエストは独立した作業単位として状態機械に沿って処理される。
// 検証→資格確認→カード確定→鑑定文生成→台帳記録→通知の順で進み、
// エラーポリシー（読み取りフェイルオープン、書き込みフェイルクローズ、
// 生成失敗時のフォールバック、通知の非同期化）はすべてこのパッケージが持つ。
package oracle

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/hitoshi/kiaora/internal/deck"
	"github.com/hitoshi/kiaora/internal/ledger"
	"github.com/hitoshi/kiaora/internal/model"
)

// fallbackReading は鑑定文の生成に失敗した場合に返す固定文。
// 生成の失敗はリクエスト全体の失敗にはしない。
const fallbackReading = "The oracle is silent at this moment. Please try again later."

// notifyTimeout は通知ゴルーチンに与える送信期限。
// レスポンスは通知の完了を待たないため、リクエストのコンテキストからは切り離す。
const notifyTimeout = 30 * time.Second

// EligibilityChecker は当日鑑定済みかどうかの判定インターフェース。
type EligibilityChecker interface {
	// IsEligible は指定メールアドレスが本日鑑定可能ならtrueを返す。
	IsEligible(ctx context.Context, email string) bool
}

// CardDrawer はシャッフル儀式による1枚引きのインターフェース。
type CardDrawer interface {
	Draw() model.Card
}

// Generator は鑑定文生成のインターフェース。
type Generator interface {
	Generate(ctx context.Context, question, name string, card model.Card) (string, error)
}

// LedgerWriter は台帳の読み書きインターフェース。
// 更新時は既存レコードのロケータを指定して正確に上書きするため、
// 書き込み前の読み取りも含む。
type LedgerWriter interface {
	FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error)
	Upsert(ctx context.Context, email, name string, at time.Time, identity string) error
}

// Notifier は鑑定結果の通知インターフェース。
type Notifier interface {
	SendConsultation(ctx context.Context, email, question, readingText, name string) error
}

// Archiver は鑑定控えの追記インターフェース。
type Archiver interface {
	AppendConsultation(ctx context.Context, entry ledger.ArchiveEntry) error
}

// MetricsCollector は鑑定処理のメトリクス記録インターフェース。
type MetricsCollector interface {
	RecordConsultation()
	RecordRejection(reason string)
	RecordCardDrawn(cardName string)
	RecordGenerationFallback()
	RecordGenerationLatency(duration time.Duration)
	RecordLedgerError(op string)
	RecordEmailSent()
	RecordEmailFailure()
}

// Service は鑑定オーケストレータ。
// 依存はすべてインターフェースとして注入され、テストでは偽物に置換できる。
// notifierとarchiverはnil許容（未構成のデプロイではその段階をスキップする）。
type Service struct {
	checker   EligibilityChecker
	drawer    CardDrawer
	generator Generator
	store     LedgerWriter
	notifier  Notifier
	archiver  Archiver
	metrics   MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	checker EligibilityChecker,
	drawer CardDrawer,
	generator Generator,
	store LedgerWriter,
	notifier Notifier,
	archiver Archiver,
	metrics MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		checker:   checker,
		drawer:    drawer,
		generator: generator,
		store:     store,
		notifier:  notifier,
		archiver:  archiver,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Consult は1件の鑑定リクエストを処理して鑑定結果を返す。
// 拒否・失敗時は*model.APIErrorを返し、HTTP層がコードからステータスに変換する。
func (s *Service) Consult(ctx context.Context, req model.ConsultationRequest) (*model.ConsultationResult, error) {
	state := StateReceived

	// 検証: 質問文は必須
	if strings.TrimSpace(req.Question) == "" {
		s.reject(state, "missing_question")
		return nil, model.NewMissingQuestionError()
	}

	// 検証: メールアドレスは任意だが、与えられた場合は形式を確認する
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			s.reject(state, "invalid_email")
			return nil, model.NewInvalidEmailError(req.Email)
		}
	}

	// 検証: 呼び出し側指定のカードはカタログに存在しなければならない
	var chosen *model.Card
	if req.Card != nil {
		chosen = deck.Lookup(req.Card.Name)
		if chosen == nil {
			s.reject(state, "unknown_card")
			return nil, model.NewUnknownCardError(req.Card.Name)
		}
	}
	state = s.transition(state, StateValidated)

	// 資格確認: メールアドレスが無い場合はスキップ（匿名鑑定は制限しない）
	if req.Email != "" {
		if !s.checker.IsEligible(ctx, req.Email) {
			s.reject(state, "already_consulted_today")
			return nil, model.NewAlreadyConsultedTodayError()
		}
	}
	state = s.transition(state, StateEligibilityChecked)

	// カード確定: 指定が無ければシャッフル儀式で引く
	var card model.Card
	if chosen != nil {
		card = *chosen
	} else {
		card = s.drawer.Draw()
	}
	s.metrics.RecordCardDrawn(card.Name)
	state = s.transition(state, StateCardSelected)

	// 鑑定文生成: 失敗および空応答はフォールバック文で回復し、リクエストは成功させる
	started := s.now()
	readingText, err := s.generator.Generate(ctx, req.Question, req.Name, card)
	s.metrics.RecordGenerationLatency(s.now().Sub(started))
	if err != nil || strings.TrimSpace(readingText) == "" {
		if err != nil {
			s.logger.Warn("鑑定文の生成に失敗したためフォールバック文を使用します", "error", err, "card", card.Name)
		} else {
			s.logger.Warn("鑑定文が空だったためフォールバック文を使用します", "card", card.Name)
		}
		s.metrics.RecordGenerationFallback()
		readingText = fallbackReading
	}
	state = s.transition(state, StateReadingGenerated)

	// 台帳記録: 書き込み失敗はフェイルクローズ（レート制限の完全性を守る）
	if req.Email != "" {
		if err := s.recordLedger(ctx, req.Email, req.Name); err != nil {
			s.fail(state, err)
			return nil, model.NewLedgerWriteFailedError()
		}
	}
	state = s.transition(state, StateRecorded)

	// 鑑定控えの追記はベストエフォート。失敗してもログのみ。
	if s.archiver != nil {
		entry := ledger.ArchiveEntry{
			Question:    req.Question,
			Response:    readingText,
			CardName:    card.Name,
			CardMeaning: card.Meaning,
			Email:       req.Email,
			CreatedAt:   s.now(),
		}
		if err := s.archiver.AppendConsultation(ctx, entry); err != nil {
			s.logger.Warn("鑑定控えの追記に失敗しました", "error", err)
		}
	}

	// 通知: レスポンスは送達を待たない。失敗はログとメトリクスのみ。
	if req.Email != "" && s.notifier != nil {
		s.notifyAsync(req.Email, req.Question, readingText, req.Name)
	}
	state = s.transition(state, StateNotified)

	s.transition(state, StateCompleted)
	s.metrics.RecordConsultation()

	return &model.ConsultationResult{
		Response: readingText,
		Card:     card,
	}, nil
}

// recordLedger は既存レコードのロケータを解決したうえで台帳を上書き更新する。
// ロケータ解決の読み取り失敗は新規作成として続行する（読み取りフェイルオープン）。
func (s *Service) recordLedger(ctx context.Context, email, name string) error {
	identity := ""
	rec, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordLedgerError("read")
		s.logger.Warn("台帳レコードの解決に失敗したため新規作成として記録します", "error", err)
	} else if rec != nil {
		identity = rec.Identity
	}

	if err := s.store.Upsert(ctx, email, name, s.now(), identity); err != nil {
		s.metrics.RecordLedgerError("write")
		return err
	}
	return nil
}

// notifyAsync は通知を別ゴルーチンで送信する。
// リクエストのコンテキストがキャンセルされても送信は継続する。
func (s *Service) notifyAsync(email, question, readingText, name string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.SendConsultation(ctx, email, question, readingText, name); err != nil {
			s.metrics.RecordEmailFailure()
			s.logger.Error("鑑定結果の通知に失敗しました", "error", err)
			return
		}
		s.metrics.RecordEmailSent()
	}()
}

func (s *Service) transition(from, to State) State {
	s.logger.Debug("鑑定状態遷移", "from", string(from), "to", string(to))
	return to
}

func (s *Service) reject(from State, reason string) {
	s.logger.Info("鑑定リクエストを拒否しました", "state", string(from), "reason", reason)
	s.metrics.RecordRejection(reason)
}

func (s *Service) fail(from State, err error) {
	s.logger.Error("鑑定リクエストが失敗しました", "state", string(from), "error", err)
}
