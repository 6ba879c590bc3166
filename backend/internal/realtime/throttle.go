package realtime

import (
	"sync"
	"time"
)

// 各信号种类的静默窗口。互相独立，谁也不会阻塞谁。
const (
	NodeUpdateDelay = 50 * time.Millisecond
	CursorDelay     = 20 * time.Millisecond
	SelectionDelay  = 20 * time.Millisecond
)

// Debouncer 尾沿去抖：窗口内的重复调用折叠成一次，窗口静默后只发最后一个值。
// 一个信号种类一个 Debouncer；同一种类不会有两个待发任务并存。
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule 记下最新的发送闭包，并把定时器推回整个窗口（尾沿行为）。
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fn = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Cancel 丢弃待发任务。离开房间时调用，保证换房后不会漏发到旧房间。
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn = nil
}

// FlushIfPending 立刻执行待发任务（页面卸载前兜底，保证最终值一定发出）。
func (d *Debouncer) FlushIfPending() {
	d.mu.Lock()
	fn := d.fn
	d.fn = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// DebounceSet 按 key 分桶的去抖集合。
// 节点更新按节点 id 分桶：对 A 的连发不能吞掉 B 的最终值。
// 发完即删：长会话里摸过的节点 id 不会让 map 一直涨。
type DebounceSet struct {
	mu    sync.Mutex
	delay time.Duration
	byKey map[string]*Debouncer
}

func NewDebounceSet(delay time.Duration) *DebounceSet {
	return &DebounceSet{delay: delay, byKey: make(map[string]*Debouncer)}
}

func (s *DebounceSet) Schedule(key string, fn func()) {
	s.mu.Lock()
	d, ok := s.byKey[key]
	if !ok {
		d = NewDebouncer(s.delay)
		s.byKey[key] = d
	}
	s.mu.Unlock()
	d.Schedule(func() {
		fn()
		s.remove(key, d)
	})
}

// remove 任务发出后清掉桶。比较指针：期间如果别人已经换了新桶，不动它。
func (s *DebounceSet) remove(key string, d *Debouncer) {
	s.mu.Lock()
	if s.byKey[key] == d {
		delete(s.byKey, key)
	}
	s.mu.Unlock()
}

func (s *DebounceSet) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.byKey {
		d.Cancel()
	}
	s.byKey = make(map[string]*Debouncer)
}

func (s *DebounceSet) FlushAll() {
	s.mu.Lock()
	ds := make([]*Debouncer, 0, len(s.byKey))
	for _, d := range s.byKey {
		ds = append(ds, d)
	}
	s.mu.Unlock()
	for _, d := range ds {
		d.FlushIfPending()
	}
}
