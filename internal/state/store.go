// internal/state/store.go
package state

import (
	"sync"
	"time"
)

// ChangeEvent 状态变更事件，推送给订阅者（如WebSocket广播）
type ChangeEvent struct {
	Version   uint64    `json:"version"`
	Action    string    `json:"action"`
	Flags     FlagsView `json:"flags"`
	Timestamp time.Time `json:"timestamp"`
}

// Store 持有一个会话的状态快照并原子地应用转换。
// 转换同步运行到完成，不会观察到其他转换的中间状态。
type Store struct {
	mu          sync.RWMutex
	state       State
	version     uint64
	lastTouched time.Time
	subscribers map[chan ChangeEvent]bool
}

// NewStore 创建带初始默认状态的存储
func NewStore() *Store {
	return &Store{
		state:       NewState(),
		lastTouched: time.Now(),
		subscribers: make(map[chan ChangeEvent]bool),
	}
}

// Apply 原子地应用一个转换，返回新状态快照。
// 转换失败时状态保持不变并返回错误。
func (st *Store) Apply(action Action) (State, error) {
	st.mu.Lock()

	next, err := Reduce(st.state, action)
	if err != nil {
		st.mu.Unlock()
		return st.state, err
	}

	st.state = next
	st.version++
	st.lastTouched = time.Now()

	event := ChangeEvent{
		Version:   st.version,
		Action:    action.Name(),
		Flags:     next.Flags(),
		Timestamp: st.lastTouched,
	}
	st.mu.Unlock()

	st.notify(event)
	return next, nil
}

// Snapshot 返回当前状态的快照。
// 快照内的容器与存储共享，调用方必须只读。
func (st *Store) Snapshot() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state
}

// Version 返回当前状态版本号
func (st *Store) Version() uint64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.version
}

// LastTouched 返回最后一次转换时间（用于会话过期判断）
func (st *Store) LastTouched() time.Time {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.lastTouched
}

// Subscribe 注册一个变更事件通道
func (st *Store) Subscribe() chan ChangeEvent {
	ch := make(chan ChangeEvent, 16)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscribers[ch] = true

	return ch
}

// Unsubscribe 注销并关闭变更事件通道
func (st *Store) Unsubscribe(ch chan ChangeEvent) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.subscribers[ch] {
		delete(st.subscribers, ch)
		close(ch)
	}
}

// notify 向所有订阅者广播事件，慢订阅者丢弃而不阻塞
func (st *Store) notify(event ChangeEvent) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for ch := range st.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
