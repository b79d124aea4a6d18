package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 视图会话状态
const (
	StateIdle    = "idle"
	StateLoading = "loading"
	StateReady   = "ready"
	StateNoMatch = "no_match"
)

// 事件常量
const (
	EventFetch   = "fetch"
	EventResolve = "resolve"
	EventEmpty   = "empty"
	EventFail    = "fail"
	EventReset   = "reset"
)

// ErrStaleView 已被新请求取代的视图结果
var ErrStaleView = errors.New("stale view result")

// Ticket 一次视图请求的凭证
type Ticket struct {
	VIN        string `json:"vin"`
	Generation uint64 `json:"generation"`
}

// SessionState 视图会话快照
type SessionState struct {
	VIN          string    `json:"vin"`
	CurrentState string    `json:"state"`
	Generation   uint64    `json:"generation"`
	Since        time.Time `json:"since"`
}

// Session 单车视图会话。每次 Begin 递增代数，旧代数的结果会被丢弃
type Session struct {
	mu            sync.Mutex
	vin           string
	generation    uint64
	since         time.Time
	fsm           *fsm.FSM
	onStateChange func(vin string, from, to string)
}

// NewSession 创建会话
func NewSession(vin string, onStateChange func(vin string, from, to string)) *Session {
	s := &Session{
		vin:           vin,
		since:         time.Now(),
		onStateChange: onStateChange,
	}

	s.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventFetch, Src: []string{StateIdle, StateLoading, StateReady, StateNoMatch}, Dst: StateLoading},
			{Name: EventResolve, Src: []string{StateLoading}, Dst: StateReady},
			{Name: EventEmpty, Src: []string{StateLoading}, Dst: StateNoMatch},
			{Name: EventFail, Src: []string{StateLoading}, Dst: StateIdle},
			{Name: EventReset, Src: []string{StateLoading, StateReady, StateNoMatch}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if s.onStateChange != nil && e.Src != e.Dst {
					s.onStateChange(s.vin, e.Src, e.Dst)
				}
			},
		},
	)

	return s
}

// Begin 开始新的请求，之前未完成的请求随之失效
func (s *Session) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.trigger(EventFetch)
	return Ticket{VIN: s.vin, Generation: s.generation}
}

// Accept 提交请求结果，empty 表示过滤后无行程。凭证过期时返回 ErrStaleView
func (s *Session) Accept(t Ticket, empty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Generation != s.generation {
		return fmt.Errorf("%w: generation %d superseded by %d", ErrStaleView, t.Generation, s.generation)
	}
	event := EventResolve
	if empty {
		event = EventEmpty
	}
	return s.trigger(event)
}

// Fail 请求失败，仅当前代数的失败会使会话回到 idle
func (s *Session) Fail(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Generation == s.generation && s.fsm.Can(EventFail) {
		_ = s.trigger(EventFail)
	}
}

// Reset 回到 idle，同时使进行中的请求失效
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.fsm.Can(EventReset) {
		_ = s.trigger(EventReset)
	}
}

// IsCurrent 凭证是否仍为最新
func (s *Session) IsCurrent(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.Generation == s.generation
}

// CurrentState 获取当前状态
func (s *Session) CurrentState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.Current()
}

// GetState 获取会话快照
func (s *Session) GetState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		VIN:          s.vin,
		CurrentState: s.fsm.Current(),
		Generation:   s.generation,
		Since:        s.since,
	}
}

func (s *Session) trigger(event string) error {
	err := s.fsm.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	s.since = time.Now()
	return nil
}

// Manager 会话管理器，按 VIN 分区
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onChange func(vin string, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(vin string, from, to string)) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建会话
func (m *Manager) GetOrCreate(vin string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[vin]; ok {
		return s
	}

	s := NewSession(vin, m.onChange)
	m.sessions[vin] = s
	return s
}

// Get 获取会话
func (m *Manager) Get(vin string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[vin]
	return s, ok
}

// GetAllStates 获取所有会话快照
func (m *Manager) GetAllStates() map[string]SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]SessionState, len(m.sessions))
	for vin, s := range m.sessions {
		states[vin] = s.GetState()
	}
	return states
}
