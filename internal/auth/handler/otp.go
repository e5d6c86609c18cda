package handler

import (
	"errors"
	"net/http"

	"supa-artistry/internal/auth/otp"
	"supa-artistry/internal/logger"

	"github.com/gin-gonic/gin"
)

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h *Handler) RequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	phone, err := h.otp.Request(c.Request.Context(), req.Phone)
	if err != nil {
		if errors.Is(err, otp.ErrInvalidPhone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("otp request failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not send verification code"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "code_sent",
		"phone":  phone,
	})
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	identity, err := h.otp.Verify(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, otp.ErrInvalidCode),
			errors.Is(err, otp.ErrTooManyAttempts):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification failed"})
		}
		return
	}

	userID, err := h.resolver.Resolve(c.Request.Context(), identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	h.issueSession(c, userID, http.StatusOK, "verified")
}
