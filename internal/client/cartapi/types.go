package cartapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// POST /cart/merge と POST /cart に送る1行
type Line struct {
	ProductID string   `json:"product_id"`
	Quantity  int64    `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

type linesRequest struct {
	Items []Line `json:"items"`
}

type RemoteItem struct {
	ID           int64   `json:"id"`
	ProductID    string  `json:"product_id"`
	Quantity     int64   `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
}

// サーバ側のカート
type Cart struct {
	Items []RemoteItem `json:"items"`
	Total float64      `json:"total"`
}

// GET /products/:id。価格は文字列の10進数で来る
type Product struct {
	ID          string          `json:"id"`
	ShopID      string          `json:"shop_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token struct {
		AccessToken string `json:"access_token"`
	} `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// トークン無しで認証必須APIを呼んだ
var ErrUnauthenticated = errors.New("cartapi: not signed in")

// StatusError は2xx以外の応答
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cartapi: status %d", e.Status)
	}
	return fmt.Sprintf("cartapi: status %d: %s", e.Status, e.Message)
}

// 5xx / 408 / 429 は再試行してよい
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}
