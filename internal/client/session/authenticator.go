package session

import (
	"context"
	"log/slog"
)

// Backend はAPIのログイン/ログアウト
type Backend interface {
	Login(ctx context.Context, email, password string) (string, error)
	Logout(ctx context.Context, token string) error
}

type Authenticator struct {
	backend Backend
	broker  *Broker
	logger  *slog.Logger
}

func NewAuthenticator(backend Backend, broker *Broker, logger *slog.Logger) *Authenticator {
	return &Authenticator{backend: backend, broker: broker, logger: logger}
}

// SignIn はログインしてSIGNED_INを配信する（同期処理が終わるまで戻らない）
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (Session, error) {
	token, err := a.backend.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	s, err := FromToken(token)
	if err != nil {
		return Session{}, err
	}
	a.broker.Publish(ctx, Event{Type: SignedIn, Session: &s})
	return s, nil
}

// SignOut はサーバ側の失敗に関係なくSIGNED_OUTを配信する
func (a *Authenticator) SignOut(ctx context.Context) {
	if s, ok := a.broker.Current(); ok {
		if err := a.backend.Logout(ctx, s.AccessToken); err != nil {
			a.logger.WarnContext(ctx, "logout request failed", "err", err)
		}
	}
	a.broker.Publish(ctx, Event{Type: SignedOut})
}
