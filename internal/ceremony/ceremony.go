// Package ceremony はシャッフル儀式の演出用状態機械を提供する。
//
// 演出の進行（シャッフル中→選択中→開示中→完了）はカード選択アルゴリズム
// そのものとは独立しており、フロントエンドが演出の歩調をサーバー側から
// 取得する場合に使う。タイマーは注入可能で、テストでは即座に進められる。
package ceremony

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Phase は演出の段階を表す。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseShuffling Phase = "shuffling"
	PhaseSelecting Phase = "selecting"
	PhaseRevealing Phase = "revealing"
	PhaseCompleted Phase = "completed"
)

// phaseOrder は正常系の遷移順。
var phaseOrder = []Phase{PhaseShuffling, PhaseSelecting, PhaseRevealing, PhaseCompleted}

// Scheduler は段階間の待機を抽象化する。実装はtime.Afterを使い、
// テストでは即座に発火する偽物に置き換える。
type Scheduler interface {
	After(d time.Duration) <-chan time.Time
}

type realScheduler struct{}

func (realScheduler) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Timings は各段階の演出時間。
type Timings struct {
	Shuffling time.Duration
	Selecting time.Duration
	Revealing time.Duration
}

// DefaultTimings は元の演出に合わせた既定値。
func DefaultTimings() Timings {
	return Timings{
		Shuffling: 2 * time.Second,
		Selecting: 1500 * time.Millisecond,
		Revealing: time.Second,
	}
}

// Machine はシャッフル儀式の演出状態機械。1回のRunで使い切る。
type Machine struct {
	scheduler Scheduler
	logger    *slog.Logger
	timings   Timings

	mu    sync.Mutex
	phase Phase
}

// NewMachine はMachineの新しいインスタンスを生成する。
func NewMachine(timings Timings, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		scheduler: realScheduler{},
		logger:    logger,
		timings:   timings,
		phase:     PhaseIdle,
	}
}

// NewMachineWithScheduler はタイマーを差し替えたMachineを生成する。
func NewMachineWithScheduler(timings Timings, scheduler Scheduler, logger *slog.Logger) *Machine {
	m := NewMachine(timings, logger)
	m.scheduler = scheduler
	return m
}

// Phase は現在の段階を返す。
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Run は演出をidleから完了まで進める。各段階への遷移時にonPhaseを呼ぶ。
// コンテキストのキャンセルで途中打ち切りでき、その場合は現在の段階のまま
// ctx.Err()を返す。完了まで進んだ場合はnilを返す。
func (m *Machine) Run(ctx context.Context, onPhase func(Phase)) error {
	m.mu.Lock()
	if m.phase != PhaseIdle {
		m.mu.Unlock()
		return ErrAlreadyRun
	}
	m.mu.Unlock()

	for _, next := range phaseOrder {
		if next != PhaseShuffling {
			// 直前の段階の演出時間だけ待ってから遷移する
			select {
			case <-ctx.Done():
				m.logger.Debug("儀式演出を中断しました", "phase", string(m.Phase()))
				return ctx.Err()
			case <-m.scheduler.After(m.waitBefore(next)):
			}
		}
		m.setPhase(next)
		if onPhase != nil {
			onPhase(next)
		}
	}
	return nil
}

func (m *Machine) setPhase(p Phase) {
	m.mu.Lock()
	from := m.phase
	m.phase = p
	m.mu.Unlock()
	m.logger.Debug("儀式演出の段階遷移", "from", string(from), "to", string(p))
}

func (m *Machine) waitBefore(next Phase) time.Duration {
	switch next {
	case PhaseSelecting:
		return m.timings.Shuffling
	case PhaseRevealing:
		return m.timings.Selecting
	case PhaseCompleted:
		return m.timings.Revealing
	default:
		return 0
	}
}
