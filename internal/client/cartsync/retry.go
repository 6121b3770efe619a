package cartsync

import (
	"context"
	"time"
)

// Backoff は指数バックオフの再試行。回数は上限あり
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		Factor:       2,
		MaxDelay:     2 * time.Second,
	}
}

// Do はfnが成功するか、retryableがfalseを返すか、回数を使い切るまで繰り返す。
// 最後のエラーを返す
func (b Backoff) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.InitialDelay

	var err error
	for i := 1; ; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i >= attempts || !retryable(err) {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		delay = b.next(delay)
	}
}

func (b Backoff) next(d time.Duration) time.Duration {
	f := b.Factor
	if f < 1 {
		f = 1
	}
	n := time.Duration(float64(d) * f)
	if b.MaxDelay > 0 && n > b.MaxDelay {
		n = b.MaxDelay
	}
	return n
}
