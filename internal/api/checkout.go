package api

import (
	"net/http"
	"strings"

	"checkout-service/internal/gateway"
	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckoutRequest represents the storefront checkout submission
type CheckoutRequest struct {
	PackageID  string            `json:"package_id"`
	FeatureIDs []string          `json:"feature_ids"`
	CouponCode string            `json:"coupon_code"`
	Client     models.ClientInfo `json:"client"`
}

// CheckoutResponse is returned once the payment intent exists
type CheckoutResponse struct {
	OrderID             string            `json:"order_id"`
	ExternalID          string            `json:"external_id"`
	Gateway             string            `json:"gateway"`
	Subtotal            int64             `json:"subtotal"`
	Discount            int64             `json:"discount"`
	Total               int64             `json:"total"`
	Currency            string            `json:"currency"`
	CouponCode          string            `json:"coupon_code,omitempty"`
	ConfirmationPayload map[string]string `json:"confirmation_payload"`
}

// ConfirmRequestBody carries confirmation material from the buyer
type ConfirmRequestBody struct {
	PaymentMethodID string        `json:"payment_method_id"`
	Card            *gateway.Card `json:"card"`
	ReturnURL       string        `json:"return_url"`
}

// ValidateCouponRequest asks for a price preview with a coupon applied
type ValidateCouponRequest struct {
	Code       string   `json:"code"`
	PackageID  string   `json:"package_id"`
	FeatureIDs []string `json:"feature_ids"`
}

// createCheckout handles checkout submissions
func (h *Handler) createCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	intent := models.CheckoutIntent{
		PackageID:      req.PackageID,
		FeatureIDs:     req.FeatureIDs,
		CouponCode:     req.CouponCode,
		Client:         req.Client,
		ClientKey:      c.ClientIP(),
		IdempotencyKey: strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	}

	result, err := h.deps.Checkout.Checkout(c.Request.Context(), intent)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CheckoutResponse{
		OrderID:             result.OrderID,
		ExternalID:          result.ExternalID,
		Gateway:             result.Gateway,
		Subtotal:            result.Subtotal.Amount,
		Discount:            result.Discount.Amount,
		Total:               result.Total.Amount,
		Currency:            result.Total.Currency,
		CouponCode:          result.CouponCode,
		ConfirmationPayload: result.ConfirmationPayload,
	})
}

// confirmCheckout forwards confirmation material for an existing checkout
func (h *Handler) confirmCheckout(c *gin.Context) {
	externalID := c.Param("externalId")

	var body ConfirmRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if body.PaymentMethodID == "" && body.Card == nil {
		badRequest(c, "payment_method_id or card is required", nil)
		return
	}

	result, err := h.deps.Checkout.Confirm(c.Request.Context(), externalID, gateway.ConfirmRequest{
		Secret:    body.PaymentMethodID,
		Card:      body.Card,
		ReturnURL: body.ReturnURL,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.respondConfirm(c, result)
}

// resumeCheckout finishes a checkout after the buyer returns from a redirect
func (h *Handler) resumeCheckout(c *gin.Context) {
	result, err := h.deps.Checkout.Resume(c.Request.Context(), c.Param("externalId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.respondConfirm(c, result)
}

func (h *Handler) respondConfirm(c *gin.Context, result *service.ConfirmResult) {
	status := http.StatusOK
	if result.State == service.StateDeclined {
		status = http.StatusPaymentRequired
		h.logger.Info("Payment declined",
			zap.String("external_id", result.ExternalID),
			zap.String("reason", result.Reason))
	}
	c.JSON(status, result)
}

// validateCoupon prices a selection with a coupon without creating anything
func (h *Handler) validateCoupon(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		badRequest(c, "Coupon code is required", nil)
		return
	}

	packageID := req.PackageID
	if packageID == "" {
		if pkgs := h.deps.Catalog.Packages(); len(pkgs) > 0 {
			packageID = pkgs[0].ID
		}
	}

	quote, err := h.deps.Pricing.Quote(c.Request.Context(), models.CheckoutIntent{
		PackageID:  packageID,
		FeatureIDs: req.FeatureIDs,
		CouponCode: models.NormalizeCouponCode(req.Code),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":          true,
		"code":           quote.Coupon.Code,
		"discount_type":  quote.Coupon.Type,
		"discount_value": quote.Coupon.Value,
		"subtotal":       quote.Subtotal.Amount,
		"discount":       quote.Discount.Amount,
		"total":          quote.Total.Amount,
		"currency":       quote.Total.Currency,
	})
}

// getCatalog lists packages, features and supported countries
func (h *Handler) getCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"currency":  h.deps.Catalog.Currency(),
		"packages":  h.deps.Catalog.Packages(),
		"features":  h.deps.Catalog.AllFeatures(),
		"countries": h.deps.Catalog.Countries(),
	})
}

// publicPaymentConfig exposes the storefront-safe payment configuration
func (h *Handler) publicPaymentConfig(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, h.deps.Config.Public(c.Request.Context()))
}
