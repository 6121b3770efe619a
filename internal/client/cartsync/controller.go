package cartsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"localshop/internal/client/cart"
	"localshop/internal/client/cartapi"
	"localshop/internal/client/debounce"
	"localshop/internal/client/session"
)

type SyncState int

const (
	Idle SyncState = iota
	Merging
	FetchingRemote
	Synced
)

func (s SyncState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Merging:
		return "merging"
	case FetchingRemote:
		return "fetching_remote"
	case Synced:
		return "synced"
	}
	return "unknown"
}

// サーバ側カート（cartapi.Client が満たす）
type RemoteCart interface {
	GetCart(ctx context.Context, token string) (cartapi.Cart, error)
	MergeCart(ctx context.Context, token string, lines []cartapi.Line) (cartapi.Cart, error)
	ReplaceCart(ctx context.Context, token string, lines []cartapi.Line) (cartapi.Cart, error)
}

// ゲストカートの保存先（storage.GuestCart が満たす）
type GuestStore interface {
	Load(ctx context.Context) []cart.LineItem
	Save(ctx context.Context, items []cart.LineItem)
	Clear(ctx context.Context)
}

// 認証イベントの購読元（session.Broker が満たす）
type AuthSource interface {
	OnAuthEvent(h session.Handler) session.Subscription
	Current() (session.Session, bool)
}

// controller はストアとサーバ側カートの同期。
// 認証の切り替えごとにepochを進め、古いepochのパイプラインは結果を捨てる。
type controller struct {
	store     *cart.Store
	guest     GuestStore
	remote    RemoteCart
	logger    *slog.Logger
	backoff   Backoff
	retryable func(error) bool
	upload    *debounce.Task

	mu         sync.Mutex
	state      SyncState
	sess       *session.Session
	epoch      uint64
	sessCtx    context.Context
	sessCancel context.CancelFunc
	baseCtx    context.Context
	closed     bool
	// マージ後の取得に失敗し、サーバのカートをまだ読めていない
	stale      bool
	refetching bool
	wg         sync.WaitGroup

	// サインインのパイプラインとサインアウトの退避は直列
	pipelineMu sync.Mutex
	// ゲスト枠がどのユーザーのカートの写しか。0ならゲストカート（pipelineMuで守る）
	slotOwner int64
}

func newController(store *cart.Store, guest GuestStore, remote RemoteCart, opts Options) *controller {
	c := &controller{
		store:     store,
		guest:     guest,
		remote:    remote,
		logger:    opts.Logger,
		backoff:   opts.Backoff,
		retryable: opts.Retryable,
		baseCtx:   context.Background(),
		sessCtx:   context.Background(),
	}
	c.upload = debounce.New(opts.Debounce, c.uploadNow)
	return c
}

func (c *controller) State() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch && !c.closed
}

func (c *controller) setStateIf(epoch uint64, s SyncState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.closed {
		return
	}
	if c.state != s {
		c.logger.Debug("sync state", "from", c.state.String(), "to", s.String())
	}
	c.state = s
}

func (c *controller) handleAuth(ctx context.Context, ev session.Event) {
	switch ev.Type {
	case session.SignedIn:
		if ev.Session == nil {
			c.logger.WarnContext(ctx, "SIGNED_IN without session, ignoring")
			return
		}
		c.signIn(ctx, *ev.Session)
	case session.SignedOut:
		c.signOut(ctx)
	}
}

// signIn: ゲストカートをマージ → 消す → サーバのカートで置き換え（server wins）
func (c *controller) signIn(ctx context.Context, s session.Session) {
	c.mu.Lock()
	again := c.sess != nil && c.sess.UserID == s.UserID && c.state == Synced
	c.mu.Unlock()
	if again {
		// 同じユーザーの再通知。送信待ちの変更は捨てずに送る
		c.upload.Flush()
	} else {
		c.upload.Cancel()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.epoch++
	epoch := c.epoch
	if c.sessCancel != nil {
		c.sessCancel()
	}
	c.sessCtx, c.sessCancel = context.WithCancel(c.baseCtx)
	sctx := c.sessCtx
	c.sess = &s
	c.state = Merging
	c.stale = false
	c.refetching = false
	c.mu.Unlock()

	c.pipelineMu.Lock()
	defer c.pipelineMu.Unlock()

	if !c.current(epoch) {
		return
	}
	log := c.logger.With("user_id", s.UserID)

	switch owner := c.slotOwner; {
	case owner == 0:
		guestItems := c.guest.Load(sctx)
		if len(guestItems) > 0 {
			err := c.backoff.Do(sctx, c.retryable, func(ctx context.Context) error {
				_, err := c.remote.MergeCart(ctx, s.AccessToken, toLines(guestItems))
				return err
			})
			if err != nil {
				// ゲストカートは残す（次のサインインで再マージ）
				c.logFailure(sctx, log, "guest cart merge failed", err)
				c.setStateIf(epoch, Idle)
				return
			}
			log.InfoContext(ctx, "guest cart merged", "lines", len(guestItems))
		}
	case owner == s.UserID:
		// 枠はこのユーザーのサーバカートの写し。足し込むと数量が倍になる
		log.DebugContext(ctx, "already signed in, skipping guest merge")
	default:
		// 前のユーザーのカートは持ち込まない。画面からも消す
		log.InfoContext(ctx, "dropping previous user's cart", "previous_user_id", owner)
		c.store.Hydrate(nil, cart.OriginRemote)
	}

	if !c.current(epoch) {
		return
	}
	c.guest.Clear(sctx)
	c.slotOwner = s.UserID

	c.fetchRemote(sctx, epoch, s, log)
}

// サーバのカートを読んでストアを置き換える。失敗したら次の変更で読み直す
func (c *controller) fetchRemote(ctx context.Context, epoch uint64, s session.Session, log *slog.Logger) {
	c.setStateIf(epoch, FetchingRemote)

	var remote cartapi.Cart
	err := c.backoff.Do(ctx, c.retryable, func(ctx context.Context) error {
		r, err := c.remote.GetCart(ctx, s.AccessToken)
		if err != nil {
			return err
		}
		remote = r
		return nil
	})
	if err != nil {
		c.logFailure(ctx, log, "remote cart fetch failed", err)
		c.mu.Lock()
		if c.epoch == epoch && !c.closed {
			c.state = Idle
			c.stale = true
			c.refetching = false
		}
		c.mu.Unlock()
		if ctx.Err() == nil {
			log.WarnContext(ctx, "server cart not loaded, edits stay on this device until the next change retries")
		}
		return
	}

	if !c.current(epoch) {
		return
	}
	c.store.Hydrate(fromRemote(remote.Items), cart.OriginRemote)

	c.mu.Lock()
	if c.epoch == epoch && !c.closed {
		c.stale = false
		c.refetching = false
	}
	c.mu.Unlock()
	c.setStateIf(epoch, Synced)
}

// refetch は取得に失敗したセッションで、次の変更をきっかけに読み直す
func (c *controller) refetch(ctx context.Context, epoch uint64, s session.Session) {
	defer c.wg.Done()

	c.pipelineMu.Lock()
	defer c.pipelineMu.Unlock()

	if !c.current(epoch) {
		return
	}
	log := c.logger.With("user_id", s.UserID)
	log.InfoContext(ctx, "retrying remote cart fetch")
	c.fetchRemote(ctx, epoch, s, log)
}

// signOut: 送信予定と送信中のアップロードを止めて、今のカートをゲストカートとして残す
func (c *controller) signOut(ctx context.Context) {
	c.mu.Lock()
	c.epoch++
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCancel = nil
	}
	c.sess = nil
	c.state = Idle
	c.stale = false
	c.refetching = false
	c.mu.Unlock()

	c.upload.Cancel()

	c.pipelineMu.Lock()
	defer c.pipelineMu.Unlock()
	c.guest.Save(ctx, c.store.Items())
	c.slotOwner = 0
}

// ストアのリスナー。変更のたびにローカル保存、同期済みならアップロードを予約
func (c *controller) onChange(s cart.State, a cart.Action) {
	if a.Origin == cart.OriginRemote {
		return
	}

	c.mu.Lock()
	ctx := c.baseCtx
	user := c.sess != nil && a.Origin == cart.OriginUser && !c.closed
	schedule := user && c.state == Synced
	refetch := user && c.stale && !c.refetching
	var (
		epoch uint64
		sess  session.Session
		sctx  context.Context
	)
	if refetch {
		c.refetching = true
		epoch, sess, sctx = c.epoch, *c.sess, c.sessCtx
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.guest.Save(ctx, s.Items)
	if schedule {
		c.upload.Trigger()
	}
	if refetch {
		go c.refetch(sctx, epoch, sess)
	}
}

// デバウンス後に呼ばれる。発火時点のカートを丸ごと送る
func (c *controller) uploadNow() {
	c.mu.Lock()
	sess := c.sess
	state := c.state
	sctx := c.sessCtx
	c.mu.Unlock()

	if sess == nil || state != Synced {
		return
	}
	items := c.store.Items()

	err := c.backoff.Do(sctx, c.retryable, func(ctx context.Context) error {
		_, err := c.remote.ReplaceCart(ctx, sess.AccessToken, toLines(items))
		return err
	})
	if err != nil {
		c.logFailure(sctx, c.logger.With("user_id", sess.UserID), "cart upload failed", err)
		return
	}
	c.logger.Debug("cart uploaded", "user_id", sess.UserID, "lines", len(items))
}

// bootstrap: ゲストカートを読み込み、セッションがあればサインイン処理
func (c *controller) bootstrap(ctx context.Context, auth AuthSource) {
	c.mu.Lock()
	c.baseCtx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	c.store.Hydrate(c.guest.Load(ctx), cart.OriginStorage)

	s, ok := auth.Current()
	if !ok {
		return
	}
	if s.Expired(time.Now()) {
		c.logger.InfoContext(ctx, "stored session expired, staying signed out", "user_id", s.UserID)
		return
	}
	c.signIn(ctx, s)
}

func (c *controller) close() {
	c.mu.Lock()
	c.closed = true
	c.epoch++
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCancel = nil
	}
	c.mu.Unlock()

	c.upload.Stop()
	c.wg.Wait()
}

// キャンセルによる中断はエラー扱いしない
func (c *controller) logFailure(ctx context.Context, log *slog.Logger, msg string, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Debug(msg+" (cancelled)", "err", err)
		return
	}
	log.Error(msg, "err", err)
}

func toLines(items []cart.LineItem) []cartapi.Line {
	lines := make([]cartapi.Line, 0, len(items))
	for _, it := range items {
		price := it.Price
		lines = append(lines, cartapi.Line{
			ProductID: it.ID,
			Quantity:  it.Quantity,
			UnitPrice: &price,
		})
	}
	return lines
}

func fromRemote(items []cartapi.RemoteItem) []cart.LineItem {
	out := make([]cart.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, cart.LineItem{
			ID:       it.ProductID,
			Name:     it.ProductName,
			Image:    it.ProductImage,
			Price:    it.UnitPrice,
			Quantity: it.Quantity,
		})
	}
	return out
}
