package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/reviews"
)

func (h *Handler) recordReview(c *gin.Context) {
	var body recordReviewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}

	review, err := h.svc.Reviews.RecordReview(c.Request.Context(), reviews.RecordInput{
		OrderID:   body.OrderID,
		ProductID: body.ProductID,
		UserID:    userID(c),
		UserName:  body.UserName,
		Rating:    body.Rating,
		Title:     body.Title,
		Comment:   body.Comment,
		Images:    body.Images,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toReviewDTO(review))
}

func (h *Handler) editReview(c *gin.Context) {
	var body editReviewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}

	review, err := h.svc.Reviews.EditReview(c.Request.Context(), reviews.EditInput{
		ReviewID: c.Param("id"),
		UserID:   userID(c),
		Rating:   body.Rating,
		Title:    body.Title,
		Comment:  body.Comment,
		Images:   body.Images,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReviewDTO(review))
}

func (h *Handler) moderateReview(c *gin.Context) {
	var body moderateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errMalformedBody, err))
		return
	}
	status, err := domain.ParseReviewStatus(body.Status)
	if err != nil {
		h.fail(c, err)
		return
	}

	review, err := h.svc.Reviews.Moderate(c.Request.Context(), c.Param("id"), status, userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReviewDTO(review))
}

func (h *Handler) productRating(c *gin.Context) {
	summary, err := h.svc.Reviews.ProductRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ratingResponse{
		ProductID: summary.ProductID,
		Average:   summary.Average,
		Count:     summary.Count,
	})
}

func (h *Handler) productReviews(c *gin.Context) {
	approved, err := h.svc.Reviews.ApprovedReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	list := make([]reviewDTO, 0, len(approved))
	for _, review := range approved {
		list = append(list, toReviewDTO(review))
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list})
}
