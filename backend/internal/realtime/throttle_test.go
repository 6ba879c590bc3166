package realtime

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var fired int32
	var last int32

	// 窗口内连发三次，只有最后一个值被发出
	for i := 1; i <= 3; i++ {
		v := int32(i)
		d.Schedule(func() {
			atomic.AddInt32(&fired, 1)
			atomic.StoreInt32(&last, v)
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&last); got != 3 {
		t.Fatalf("last = %d, want 3 (trailing edge keeps the final value)", got)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fired int32
	d.Schedule(func() { atomic.AddInt32(&fired, 1) })
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired = %d after Cancel, want 0", got)
	}
}

func TestDebouncer_FlushIfPending(t *testing.T) {
	d := NewDebouncer(time.Hour) // 窗口长到不可能自己到期
	var fired int32
	d.Schedule(func() { atomic.AddInt32(&fired, 1) })
	d.FlushIfPending()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired = %d after Flush, want 1", got)
	}
	// 没有待发任务时 Flush 是 no-op
	d.FlushIfPending()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired = %d after second Flush, want 1", got)
	}
}

func TestDebounceSet_KeysAreIndependent(t *testing.T) {
	s := NewDebounceSet(30 * time.Millisecond)
	var a, b int32
	// 对 n1 的连发不能吞掉 n2 的最终值
	s.Schedule("n1", func() { atomic.AddInt32(&a, 1) })
	s.Schedule("n2", func() { atomic.AddInt32(&b, 1) })
	s.Schedule("n1", func() { atomic.AddInt32(&a, 1) })

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&a) != 1 {
		t.Fatalf("n1 fired %d times, want 1", a)
	}
	if atomic.LoadInt32(&b) != 1 {
		t.Fatalf("n2 fired %d times, want 1", b)
	}
}

func TestDebounceSet_CancelAll(t *testing.T) {
	s := NewDebounceSet(20 * time.Millisecond)
	var fired int32
	s.Schedule("n1", func() { atomic.AddInt32(&fired, 1) })
	s.Schedule("n2", func() { atomic.AddInt32(&fired, 1) })
	s.CancelAll()
	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired = %d after CancelAll, want 0", got)
	}
	s.mu.Lock()
	n := len(s.byKey)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("CancelAll 后还剩 %d 个桶, want 0", n)
	}
}

func TestDebounceSet_RemovesBucketsAfterFire(t *testing.T) {
	// 长会话里摸过的每个节点 id 不能在 map 里常驻
	s := NewDebounceSet(10 * time.Millisecond)
	for i := 0; i < 50; i++ {
		s.Schedule("n"+string(rune('a'+i%26))+string(rune('0'+i/26)), func() {})
	}
	time.Sleep(100 * time.Millisecond)

	s.mu.Lock()
	n := len(s.byKey)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("发完后还剩 %d 个桶, want 0", n)
	}
}
