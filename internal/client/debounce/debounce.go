package debounce

import (
	"sync"
	"time"
)

// Task は最後のTriggerからdelay経過後に1回だけfnを実行する。
// 間に来たTriggerはタイマーを張り直し、前の予約は実行されない。
type Task struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
	stopped bool

	// fnの同時実行はしない
	runMu sync.Mutex
}

func New(delay time.Duration, fn func()) *Task {
	return &Task{delay: delay, fn: fn}
}

func (t *Task) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = true
	t.timer = time.AfterFunc(t.delay, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.mu.Unlock()

	t.run()
}

func (t *Task) run() {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	t.fn()
}

// Flush は予約があれば今すぐ同期実行する。実行したらtrue
func (t *Task) Flush() bool {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return false
	}
	t.cancelLocked()
	t.mu.Unlock()

	t.run()
	return true
}

// Cancel は予約を捨てる（実行中のfnは止めない）
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *Task) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.pending = false
}

// Stop 以降のTriggerは無視
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.stopped = true
}

func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
