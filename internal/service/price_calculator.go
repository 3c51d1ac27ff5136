package service

import (
	"context"
	"errors"

	"checkout-service/internal/catalog"
	"checkout-service/internal/models"
	"checkout-service/internal/money"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var hundred = decimal.NewFromInt(100)

// Quote is the priced form of a checkout intent
type Quote struct {
	Package  models.Package
	Features []models.Feature
	Coupon   *models.Discount
	Subtotal money.Money
	Discount money.Money
	Total    money.Money
}

// PriceCalculator combines catalog prices and an optional discount into totals
type PriceCalculator struct {
	catalog   ProductCatalog
	coupons   *CouponValidator
	minCharge int64
}

// NewPriceCalculator creates a price calculator. minCharge is the floor in minor units.
func NewPriceCalculator(catalog ProductCatalog, coupons *CouponValidator, minCharge int64) *PriceCalculator {
	return &PriceCalculator{
		catalog:   catalog,
		coupons:   coupons,
		minCharge: minCharge,
	}
}

// Subtotal is the package price plus every selected feature price
func (pc *PriceCalculator) Subtotal(pkg models.Package, features []models.Feature) (money.Money, error) {
	total := pkg.UnitPrice
	for _, f := range features {
		var err error
		total, err = total.Add(f.Price)
		if err != nil {
			return money.Money{}, validationError("feature %s: %v", f.ID, err)
		}
	}
	return total, nil
}

// Total applies the discount and rounds half-up once. Fixed discounts never take the total below the floor.
func (pc *PriceCalculator) Total(subtotal money.Money, discount *models.Discount) money.Money {
	if discount == nil {
		return subtotal
	}

	minor := discountedMinor(subtotal, discount).Round(0).IntPart()
	if discount.Type == models.DiscountTypeFixed && minor < pc.minCharge {
		minor = pc.minCharge
	}
	if minor < 0 {
		minor = 0
	}
	return money.New(minor, subtotal.Currency)
}

// Quote resolves catalog ids, re-validates the coupon against the current subtotal and prices the intent
func (pc *PriceCalculator) Quote(ctx context.Context, intent models.CheckoutIntent) (*Quote, error) {
	ctx, span := util.StartSpan(ctx, "PriceCalculator.Quote",
		attribute.String("package_id", intent.PackageID))
	defer span.End()

	pkg, err := pc.catalog.Package(intent.PackageID)
	if err != nil {
		return nil, catalogError(err)
	}
	features, err := pc.catalog.Features(intent.FeatureIDs)
	if err != nil {
		return nil, catalogError(err)
	}

	subtotal, err := pc.Subtotal(pkg, features)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Package:  pkg,
		Features: features,
		Subtotal: subtotal,
		Discount: money.New(0, subtotal.Currency),
		Total:    subtotal,
	}

	if intent.CouponCode != "" {
		discount, err := pc.coupons.Validate(ctx, intent.CouponCode, subtotal)
		if err != nil {
			return nil, err
		}
		q.Coupon = discount
		q.Total = pc.Total(subtotal, discount)
		q.Discount = money.New(subtotal.Amount-q.Total.Amount, subtotal.Currency)
	}

	return q, nil
}

// discountedMinor returns the unrounded, unclamped minor-unit amount after the discount
func discountedMinor(subtotal money.Money, discount *models.Discount) decimal.Decimal {
	base := subtotal.MinorDecimal()
	switch discount.Type {
	case models.DiscountTypePercentage:
		factor := decimal.NewFromInt(1).Sub(discount.Value.Div(hundred))
		return base.Mul(factor)
	case models.DiscountTypeFixed:
		return base.Sub(discount.Value.Mul(hundred))
	default:
		return base
	}
}

func catalogError(err error) *Error {
	if errors.Is(err, catalog.ErrUnknownPackage) || errors.Is(err, catalog.ErrUnknownFeature) {
		return &Error{Kind: KindValidation, Reason: string(KindValidation), Message: err.Error(), Err: err}
	}
	return &Error{Kind: KindValidation, Reason: string(KindValidation), Message: "invalid selection", Err: err}
}
