package handler

import (
	"context"
	"net/http"
	"strconv"

	"localshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type CartLineRequest struct {
	ProductID string   `json:"product_id"`
	Quantity  int64    `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

// POST /cart/merge と POST /cart の本文
type CartLinesRequest struct {
	Items []CartLineRequest `json:"items"`
}

type SetCartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// /cart, /cart/merge, /cart/items/:id を登録。authはJWT系のmiddleware
func (h *CartHandler) RegisterRoutes(g *echo.Group, auth ...echo.MiddlewareFunc) {
	cart := g.Group("/cart", auth...)

	cart.GET("", h.getCart)
	cart.POST("", h.replaceCart)
	cart.POST("/merge", h.mergeCart)
	cart.POST("/items", h.setItem)
	cart.PATCH("/items/:id", h.patchItem)
	cart.DELETE("/items/:id", h.deleteItem)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) mergeCart(c echo.Context) error {
	return h.writeLines(c, h.uc.MergeCart)
}

func (h *CartHandler) replaceCart(c echo.Context) error {
	return h.writeLines(c, h.uc.ReplaceCart)
}

func (h *CartHandler) writeLines(c echo.Context, write func(ctx context.Context, userID int64, in []usecase.CartLineInput) (usecase.CartResponse, error)) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CartLinesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	lines := make([]usecase.CartLineInput, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, usecase.CartLineInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	out, err := write(c.Request().Context(), userID, lines)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) setItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req SetCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.SetItem(c.Request().Context(), userID, usecase.CartLineInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) patchItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdateCartItem(c.Request().Context(), userID, itemID, usecase.UpdateCartItemInput{
		Quantity: req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.DeleteCartItem(c.Request().Context(), userID, itemID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, okResponse{OK: true})
}
