package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/kiaora/internal/ledger"
	"github.com/hitoshi/kiaora/internal/model"
)

// --- モック ---

type mockChecker struct {
	isEligibleFn func(ctx context.Context, email string) bool
	calls        int
}

func (m *mockChecker) IsEligible(ctx context.Context, email string) bool {
	m.calls++
	if m.isEligibleFn != nil {
		return m.isEligibleFn(ctx, email)
	}
	return true
}

type mockDrawer struct {
	card  model.Card
	calls int
}

func (m *mockDrawer) Draw() model.Card {
	m.calls++
	return m.card
}

type mockGenerator struct {
	generateFn func(ctx context.Context, question, name string, card model.Card) (string, error)
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, question, name string, card model.Card) (string, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, question, name, card)
	}
	return "a reading", nil
}

type upsertCall struct {
	email    string
	name     string
	identity string
}

type mockStore struct {
	findByEmailFn func(ctx context.Context, email string) (*model.ConsultationRecord, error)
	upsertFn      func(ctx context.Context, email, name string, at time.Time, identity string) error
	upserts       []upsertCall
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*model.ConsultationRecord, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockStore) Upsert(ctx context.Context, email, name string, at time.Time, identity string) error {
	m.upserts = append(m.upserts, upsertCall{email: email, name: name, identity: identity})
	if m.upsertFn != nil {
		return m.upsertFn(ctx, email, name, at, identity)
	}
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, email, question, readingText, name string) error
	sent   []string
	done   chan struct{}
}

func (m *mockNotifier) SendConsultation(ctx context.Context, email, question, readingText, name string) error {
	m.mu.Lock()
	m.sent = append(m.sent, email)
	m.mu.Unlock()
	var err error
	if m.sendFn != nil {
		err = m.sendFn(ctx, email, question, readingText, name)
	}
	if m.done != nil {
		close(m.done)
	}
	return err
}

type mockArchiver struct {
	appendFn func(ctx context.Context, entry ledger.ArchiveEntry) error
	entries  []ledger.ArchiveEntry
}

func (m *mockArchiver) AppendConsultation(ctx context.Context, entry ledger.ArchiveEntry) error {
	m.entries = append(m.entries, entry)
	if m.appendFn != nil {
		return m.appendFn(ctx, entry)
	}
	return nil
}

type mockMetrics struct {
	mu            sync.Mutex
	consultations int
	rejections    []string
	cardsDrawn    []string
	fallbacks     int
	ledgerErrors  []string
	emailsSent    int
	emailFailures int
}

func (m *mockMetrics) RecordConsultation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consultations++
}
func (m *mockMetrics) RecordRejection(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}
func (m *mockMetrics) RecordCardDrawn(cardName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardsDrawn = append(m.cardsDrawn, cardName)
}
func (m *mockMetrics) RecordGenerationFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}
func (m *mockMetrics) RecordGenerationLatency(duration time.Duration) {}
func (m *mockMetrics) RecordLedgerError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgerErrors = append(m.ledgerErrors, op)
}
func (m *mockMetrics) RecordEmailSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailsSent++
}
func (m *mockMetrics) RecordEmailFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailFailures++
}

type testDeps struct {
	checker  *mockChecker
	drawer   *mockDrawer
	gen      *mockGenerator
	store    *mockStore
	notifier *mockNotifier
	archiver *mockArchiver
	metrics  *mockMetrics
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		checker:  &mockChecker{},
		drawer:   &mockDrawer{card: model.Card{Name: "Aroha", Meaning: "Love and compassion"}},
		gen:      &mockGenerator{},
		store:    &mockStore{},
		notifier: &mockNotifier{},
		archiver: &mockArchiver{},
		metrics:  &mockMetrics{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(deps.checker, deps.drawer, deps.gen, deps.store, deps.notifier, deps.archiver, deps.metrics, logger)
	return svc, deps
}

// TestConsult_FirstRequestSucceeds は初回鑑定が成功し台帳に記録されることを検証する。
func TestConsult_FirstRequestSucceeds(t *testing.T) {
	svc, deps := newTestService(t)
	deps.notifier.done = make(chan struct{})

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
		Email:    "a@x.com",
		Name:     "Aria",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response != "a reading" {
		t.Errorf("Response = %q, want %q", result.Response, "a reading")
	}
	if result.Card.Name != "Aroha" {
		t.Errorf("Card = %q, want Aroha", result.Card.Name)
	}
	if len(deps.store.upserts) != 1 {
		t.Fatalf("Upsert呼び出し回数 = %d, want 1", len(deps.store.upserts))
	}
	if deps.store.upserts[0].email != "a@x.com" {
		t.Errorf("Upsertのメールアドレス = %q", deps.store.upserts[0].email)
	}

	// 通知は非同期だが、成功したリクエストでは最終的に送信される
	select {
	case <-deps.notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("通知が送信されなかった")
	}
	if deps.metrics.consultations != 1 {
		t.Errorf("consultations = %d, want 1", deps.metrics.consultations)
	}
}

// TestConsult_AlreadyConsultedToday は当日鑑定済みのリクエストが拒否されることを検証する。
func TestConsult_AlreadyConsultedToday(t *testing.T) {
	svc, deps := newTestService(t)
	deps.checker.isEligibleFn = func(ctx context.Context, email string) bool { return false }

	_, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
		Email:    "a@x.com",
	})
	apiErr := &model.APIError{}
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAlreadyConsultedToday {
		t.Fatalf("err = %v, want ALREADY_CONSULTED_TODAY", err)
	}
	// 台帳も生成も呼び出してはならない
	if len(deps.store.upserts) != 0 {
		t.Errorf("拒否時にUpsertが呼ばれた")
	}
	if deps.gen.calls != 0 {
		t.Errorf("拒否時にGenerateが呼ばれた")
	}
	if len(deps.metrics.rejections) != 1 || deps.metrics.rejections[0] != "already_consulted_today" {
		t.Errorf("rejections = %v", deps.metrics.rejections)
	}
}

// TestConsult_EmptyQuestionRejected は質問が空のリクエストが即座に拒否されることを検証する。
func TestConsult_EmptyQuestionRejected(t *testing.T) {
	svc, deps := newTestService(t)

	for _, question := range []string{"", "   ", "\n\t"} {
		_, err := svc.Consult(context.Background(), model.ConsultationRequest{
			Question: question,
			Email:    "a@x.com",
		})
		apiErr := &model.APIError{}
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeMissingQuestion {
			t.Fatalf("question=%q: err = %v, want MISSING_QUESTION", question, err)
		}
	}
	// 資格確認にも生成にも台帳にも一切触れない
	if deps.checker.calls != 0 || deps.gen.calls != 0 || len(deps.store.upserts) != 0 {
		t.Errorf("検証失敗時に後続の処理が呼ばれた")
	}
}

// TestConsult_LedgerReadFailureStillWrites は台帳の読み取り失敗時も
// 鑑定が成功し、新規レコードとして書き込みが試みられることを検証する。
func TestConsult_LedgerReadFailureStillWrites(t *testing.T) {
	svc, deps := newTestService(t)
	deps.store.findByEmailFn = func(ctx context.Context, email string) (*model.ConsultationRecord, error) {
		return nil, ledger.ErrStoreUnavailable
	}

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "Will the weather hold?",
		Email:    "a@x.com",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response == "" {
		t.Error("鑑定文が空")
	}
	if len(deps.store.upserts) != 1 {
		t.Fatalf("Upsert呼び出し回数 = %d, want 1", len(deps.store.upserts))
	}
	if deps.store.upserts[0].identity != "" {
		t.Errorf("読み取り失敗時のidentityは空であるべき: %q", deps.store.upserts[0].identity)
	}
}

// TestConsult_UpsertTargetsExistingIdentity は既存レコードがある場合に
// そのロケータを指定して上書き更新することを検証する。
func TestConsult_UpsertTargetsExistingIdentity(t *testing.T) {
	svc, deps := newTestService(t)
	yesterday := time.Now().Add(-48 * time.Hour)
	deps.store.findByEmailFn = func(ctx context.Context, email string) (*model.ConsultationRecord, error) {
		return &model.ConsultationRecord{Email: email, LastConsultedAt: yesterday, Identity: "row-42"}, nil
	}

	if _, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I let go of?",
		Email:    "a@x.com",
	}); err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if len(deps.store.upserts) != 1 || deps.store.upserts[0].identity != "row-42" {
		t.Errorf("upserts = %+v, want identity row-42", deps.store.upserts)
	}
}

// TestConsult_LedgerWriteFailureFailsRequest は台帳への書き込み失敗が
// リクエスト全体の失敗になることを検証する（書き込みフェイルクローズ）。
func TestConsult_LedgerWriteFailureFailsRequest(t *testing.T) {
	svc, deps := newTestService(t)
	deps.store.upsertFn = func(ctx context.Context, email, name string, at time.Time, identity string) error {
		return ledger.ErrStoreUnavailable
	}

	_, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
		Email:    "a@x.com",
	})
	apiErr := &model.APIError{}
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLedgerWriteFailed {
		t.Fatalf("err = %v, want LEDGER_WRITE_FAILED", err)
	}
	if deps.metrics.ledgerErrors[len(deps.metrics.ledgerErrors)-1] != "write" {
		t.Errorf("ledgerErrors = %v", deps.metrics.ledgerErrors)
	}
}

// TestConsult_GenerationFailureUsesFallback は生成失敗時にフォールバック文で
// 回復し、リクエストが成功することを検証する。
func TestConsult_GenerationFailureUsesFallback(t *testing.T) {
	svc, deps := newTestService(t)
	deps.gen.generateFn = func(ctx context.Context, question, name string, card model.Card) (string, error) {
		return "", errors.New("api unavailable")
	}

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What lies ahead?",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response != fallbackReading {
		t.Errorf("Response = %q, want fallback", result.Response)
	}
	if deps.metrics.fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", deps.metrics.fallbacks)
	}
}

// TestConsult_EmptyGenerationUsesFallback は生成結果が空文字列の場合も
// フォールバック文に置き換わることを検証する。
func TestConsult_EmptyGenerationUsesFallback(t *testing.T) {
	svc, deps := newTestService(t)
	deps.gen.generateFn = func(ctx context.Context, question, name string, card model.Card) (string, error) {
		return "   ", nil
	}

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What lies ahead?",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response != fallbackReading {
		t.Errorf("Response = %q, want fallback", result.Response)
	}
}

// TestConsult_NoEmailSkipsLedgerAndNotification はメールアドレス無しの鑑定が
// 資格確認・台帳・通知をすべてスキップすることを検証する。
func TestConsult_NoEmailSkipsLedgerAndNotification(t *testing.T) {
	svc, deps := newTestService(t)

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response == "" {
		t.Error("鑑定文が空")
	}
	if deps.checker.calls != 0 {
		t.Errorf("メール無しで資格確認が呼ばれた")
	}
	if len(deps.store.upserts) != 0 {
		t.Errorf("メール無しでUpsertが呼ばれた")
	}
	deps.notifier.mu.Lock()
	sent := len(deps.notifier.sent)
	deps.notifier.mu.Unlock()
	if sent != 0 {
		t.Errorf("メール無しで通知が送信された")
	}
}

// TestConsult_InvalidEmailRejected は不正な形式のメールアドレスが拒否されることを検証する。
func TestConsult_InvalidEmailRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
		Email:    "not-an-email",
	})
	apiErr := &model.APIError{}
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidEmail {
		t.Fatalf("err = %v, want INVALID_EMAIL", err)
	}
}

// TestConsult_SuppliedCardUsed は呼び出し側指定のカードがカタログの正式な
// 定義で採用され、シャッフルが行われないことを検証する。
func TestConsult_SuppliedCardUsed(t *testing.T) {
	svc, deps := newTestService(t)

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What guides me?",
		Card:     &model.Card{Name: "Wairua"},
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Card.Name != "Wairua" {
		t.Errorf("Card = %q, want Wairua", result.Card.Name)
	}
	if result.Card.Meaning == "" {
		t.Error("カタログの正式な意味が補完されるべき")
	}
	if deps.drawer.calls != 0 {
		t.Errorf("カード指定時にDrawが呼ばれた")
	}
}

// TestConsult_UnknownCardRejected はカタログに存在しないカード指定が拒否されることを検証する。
func TestConsult_UnknownCardRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What guides me?",
		Card:     &model.Card{Name: "Excalibur"},
	})
	apiErr := &model.APIError{}
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnknownCard {
		t.Fatalf("err = %v, want UNKNOWN_CARD", err)
	}
}

// TestConsult_NotificationFailureDoesNotAffectResult は通知の失敗が
// 鑑定結果に影響しないことを検証する。
func TestConsult_NotificationFailureDoesNotAffectResult(t *testing.T) {
	svc, deps := newTestService(t)
	deps.notifier.done = make(chan struct{})
	deps.notifier.sendFn = func(ctx context.Context, email, question, readingText, name string) error {
		return errors.New("smtp down")
	}

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
		Email:    "a@x.com",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response == "" {
		t.Error("鑑定文が空")
	}

	select {
	case <-deps.notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("通知が試行されなかった")
	}
	deps.metrics.mu.Lock()
	failures := deps.metrics.emailFailures
	deps.metrics.mu.Unlock()
	if failures != 1 {
		t.Errorf("emailFailures = %d, want 1", failures)
	}
}

// TestConsult_ArchiveEntryAppended は完了した鑑定の控えが追記されることを検証する。
func TestConsult_ArchiveEntryAppended(t *testing.T) {
	svc, deps := newTestService(t)

	if _, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
		Email:    "a@x.com",
	}); err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if len(deps.archiver.entries) != 1 {
		t.Fatalf("控えの件数 = %d, want 1", len(deps.archiver.entries))
	}
	entry := deps.archiver.entries[0]
	if entry.Question != "What should I focus on?" || entry.Email != "a@x.com" || entry.CardName != "Aroha" {
		t.Errorf("entry = %+v", entry)
	}
}

// TestConsult_ArchiveFailureDoesNotAffectResult は控えの追記失敗が
// 鑑定結果に影響しないことを検証する。
func TestConsult_ArchiveFailureDoesNotAffectResult(t *testing.T) {
	svc, deps := newTestService(t)
	deps.archiver.appendFn = func(ctx context.Context, entry ledger.ArchiveEntry) error {
		return errors.New("archive unavailable")
	}

	result, err := svc.Consult(context.Background(), model.ConsultationRequest{
		Question: "What should I focus on?",
	})
	if err != nil {
		t.Fatalf("Consult: %v", err)
	}
	if result.Response == "" {
		t.Error("鑑定文が空")
	}
}
