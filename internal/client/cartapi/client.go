package cartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

type Options struct {
	Timeout time.Duration
	// 連続失敗がこの回数でブレーカーを開く
	MaxFailures uint32
	// 開いてから半開になるまで
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxFailures == 0 {
		o.MaxFailures = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Client はLocalShop APIのクライアント。全リクエストが同じブレーカーを通る。
type Client struct {
	base   string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	logger *slog.Logger
}

func New(baseURL string, opts Options) *Client {
	opts = opts.withDefaults()

	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: opts.Timeout},
		logger: opts.Logger,
	}
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "localshop-api",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		// 4xxはサーバが生きているので失敗に数えない
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Retryable はバックオフして再送してよいエラーか
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnauthenticated) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	// 接続エラーなど
	return true
}

func (c *Client) GetCart(ctx context.Context, token string) (Cart, error) {
	var out Cart
	if err := c.doJSON(ctx, http.MethodGet, "/cart", token, true, nil, &out); err != nil {
		return Cart{}, err
	}
	return out, nil
}

// MergeCart はサーバ側の数量に加算する
func (c *Client) MergeCart(ctx context.Context, token string, lines []Line) (Cart, error) {
	var out Cart
	if err := c.doJSON(ctx, http.MethodPost, "/cart/merge", token, true, linesRequest{Items: nonNil(lines)}, &out); err != nil {
		return Cart{}, err
	}
	return out, nil
}

// ReplaceCart はサーバ側のカートを丸ごと置き換える
func (c *Client) ReplaceCart(ctx context.Context, token string, lines []Line) (Cart, error) {
	var out Cart
	if err := c.doJSON(ctx, http.MethodPost, "/cart", token, true, linesRequest{Items: nonNil(lines)}, &out); err != nil {
		return Cart{}, err
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	var out Product
	if err := c.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id), "", false, nil, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

// Login はaccess tokenを返す
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", false, loginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token.AccessToken == "" {
		return "", fmt.Errorf("cartapi: login response has no token")
	}
	return out.Token.AccessToken, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", token, true, nil, nil)
}

func nonNil(lines []Line) []Line {
	if lines == nil {
		return []Line{}
	}
	return lines
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, needAuth bool, in, out any) error {
	if needAuth && token == "" {
		return ErrUnauthenticated
	}

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, token, payload)
	})
	if err != nil {
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, token string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		se := &StatusError{Status: res.StatusCode}
		var er errorResponse
		if json.Unmarshal(b, &er) == nil {
			se.Message = er.Error
		}
		c.logger.DebugContext(ctx, "api error", "method", method, "path", path, "status", res.StatusCode, "error", se.Message)
		return nil, se
	}
	return b, nil
}
