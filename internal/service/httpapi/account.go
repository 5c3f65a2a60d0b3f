package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
)

func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.svc.Accounts.Get(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := accountResponse{
		ID:          account.ID,
		Name:        account.Name,
		TotalOrders: account.TotalOrders,
		TotalSpent:  account.TotalSpent,
		Cart:        account.Cart,
	}
	if !account.LastOrderDate.IsZero() {
		last := account.LastOrderDate
		resp.LastOrderDate = &last
	}
	if resp.Cart == nil {
		resp.Cart = []domain.CartLine{}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) saveCart(c *gin.Context) {
	var body cartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	if err := h.svc.Accounts.SaveCart(c.Request.Context(), userID(c), body.CartItems); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) upsertStock(c *gin.Context) {
	var body stockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}

	product, err := h.svc.Stock.Upsert(c.Request.Context(), inventory.StockUpdate{
		ProductID:                     c.Param("id"),
		Name:                          body.Name,
		Price:                         body.Price,
		Image:                         body.Image,
		Quantity:                      body.Quantity,
		TrackQuantity:                 body.TrackQuantity,
		ContinueSellingWhenOutOfStock: body.ContinueSellingWhenOutOfStock,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductDTO(product))
}
