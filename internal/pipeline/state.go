package pipeline

import (
	"sync"

	"github.com/iabetor/tagvoice/internal/logger"
)

// State 表示一次请求在流水线中的阶段。
type State int

const (
	StateReceived State = iota
	StateEmotionExtracted
	StateSanitized
	StateLanguageResolved
	StateScriptPreprocessed
	StateSynthesized
	StatePostProcessed
	// StateSkipped 表示后处理被关闭或降级。
	StateSkipped
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	"Received",
	"EmotionExtracted",
	"Sanitized",
	"LanguageResolved",
	"ScriptPreprocessed",
	"Synthesized",
	"PostProcessed",
	"Skipped",
	"Complete",
	"Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理单个请求的状态转换，可被并发读取。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Received 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateReceived,
	}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态，只有合法的转换才会生效：
//
//	Received → EmotionExtracted → Sanitized → LanguageResolved
//	  → ScriptPreprocessed → Synthesized → (PostProcessed | Skipped) → Complete
//
// Complete 和 Failed 之外的任何状态都可以转换到 Failed。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Warnf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// Fail 转换到 Failed；已终止时不做任何事。
func (sm *StateMachine) Fail() bool {
	return sm.Transition(StateFailed)
}

// Terminal 报告状态机是否已结束。
func (sm *StateMachine) Terminal() bool {
	s := sm.Current()
	return s == StateComplete || s == StateFailed
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if from == StateComplete || from == StateFailed {
		return false
	}
	if to == StateFailed {
		return true
	}
	switch from {
	case StateSynthesized:
		return to == StatePostProcessed || to == StateSkipped
	case StatePostProcessed, StateSkipped:
		return to == StateComplete
	case StateReceived, StateEmotionExtracted, StateSanitized, StateLanguageResolved, StateScriptPreprocessed:
		return to == from+1
	}
	return false
}
