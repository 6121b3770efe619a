package cartsync

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"localshop/internal/client/cart"
	"localshop/internal/client/cartapi"
	"localshop/internal/client/session"
)

type Options struct {
	// ローカル変更からアップロードまでの待ち
	Debounce  time.Duration
	Backoff   Backoff
	Retryable func(error) bool
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 800 * time.Millisecond
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.Retryable == nil {
		o.Retryable = cartapi.Retryable
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Service はカート同期エンジンの入口。アプリごとに1つ作って渡す。
type Service struct {
	store *cart.Store
	auth  AuthSource
	ctrl  *controller

	unsubscribeStore func()
	authSub          session.Subscription
	closeOnce        sync.Once
}

// NewService はストアと認証イベントを購読する。Startを呼ぶまで読み込みはしない
func NewService(store *cart.Store, guest GuestStore, remote RemoteCart, auth AuthSource, opts Options) *Service {
	opts = opts.withDefaults()
	ctrl := newController(store, guest, remote, opts)

	return &Service{
		store:            store,
		auth:             auth,
		ctrl:             ctrl,
		unsubscribeStore: store.Subscribe(ctrl.onChange),
		authSub:          auth.OnAuthEvent(ctrl.handleAuth),
	}
}

// Start はゲストカートを復元し、ログイン済みならサーバと同期する
func (s *Service) Start(ctx context.Context) {
	s.ctrl.bootstrap(ctx, s.auth)
}

func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.authSub.Unsubscribe()
		s.unsubscribeStore()
		s.ctrl.close()
	})
}

func (s *Service) AddItem(p cart.Product) {
	s.store.AddItem(p)
}

func (s *Service) RemoveItem(id string) {
	s.store.RemoveItem(id)
}

func (s *Service) UpdateQuantity(id string, quantity int64) {
	s.store.UpdateQuantity(id, quantity)
}

func (s *Service) ClearCart() {
	s.store.ClearCart()
}

func (s *Service) Items() []cart.LineItem {
	return s.store.Items()
}

func (s *Service) Total() float64 {
	return s.store.Total()
}

func (s *Service) SyncState() SyncState {
	return s.ctrl.State()
}

// FlushSync は予約中のアップロードを今すぐ実行する（終了前など）
func (s *Service) FlushSync() bool {
	return s.ctrl.upload.Flush()
}
