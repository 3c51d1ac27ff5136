package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[service.ErrorKind]int{
	service.KindValidation:         http.StatusBadRequest,
	service.KindCoupon:             http.StatusUnprocessableEntity,
	service.KindGatewayRejected:    http.StatusPaymentRequired,
	service.KindGatewayUnavailable: http.StatusServiceUnavailable,
	service.KindRateLimited:        http.StatusTooManyRequests,
	service.KindConfiguration:      http.StatusInternalServerError,
	service.KindAmountTooLow:       http.StatusUnprocessableEntity,
	service.KindPaymentFailed:      http.StatusBadGateway,
	service.KindNotFound:           http.StatusNotFound,
}

// respondError writes a service error. Provider detail stays in the log.
func (h *Handler) respondError(c *gin.Context, err error) {
	var serr *service.Error
	if !errors.As(err, &serr) {
		h.logger.Error("Unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status, ok := statusByKind[serr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	if serr.Kind == service.KindRateLimited {
		secs := int(math.Ceil(serr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	}

	c.JSON(status, gin.H{
		"error":  serr.Message,
		"reason": serr.Reason,
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
