package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type EventType string

const (
	SignedIn  EventType = "SIGNED_IN"
	SignedOut EventType = "SIGNED_OUT"
)

// Session はログイン中のユーザー。AccessTokenはAPIに送るbearer
type Session struct {
	AccessToken string
	UserID      int64
	Email       string
	ExpiresAt   time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SignedOut のときSessionはnil
type Event struct {
	Type    EventType
	Session *Session
}

var ErrInvalidToken = errors.New("session: invalid access token")

// FromToken はサーバが発行したJWTからSessionを組み立てる。
// 署名はサーバ側で検証されるのでここでは見ない。
func FromToken(raw string) (Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	uid, err := subject(claims["sub"])
	if err != nil {
		return Session{}, err
	}

	s := Session{AccessToken: raw, UserID: uid}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if exp, ok := claims["exp"].(float64); ok {
		s.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return s, nil
}

// subは文字列でも数値でも受ける
func subject(v any) (int64, error) {
	switch sub := v.(type) {
	case string:
		n, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: bad sub", ErrInvalidToken)
		}
		return n, nil
	case float64:
		if sub <= 0 || sub != float64(int64(sub)) {
			return 0, fmt.Errorf("%w: bad sub", ErrInvalidToken)
		}
		return int64(sub), nil
	}
	return 0, fmt.Errorf("%w: missing sub", ErrInvalidToken)
}
