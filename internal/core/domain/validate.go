package domain

import (
	"fmt"
	"regexp"
	"time"
)

var (
	productCodePattern   = regexp.MustCompile(`^\d{12}$`)
	receiptNumberPattern = regexp.MustCompile(`^CHECK\d{3,5}$`)
	employeeIDPattern    = regexp.MustCompile(`^E\d{3}$`)
	cardNumberPattern    = regexp.MustCompile(`^\d{12}$`)
)

func ValidProductCode(code string) bool  { return productCodePattern.MatchString(code) }
func ValidReceiptNumber(num string) bool { return receiptNumberPattern.MatchString(num) }
func ValidEmployeeID(id string) bool     { return employeeIDPattern.MatchString(id) }
func ValidCardNumber(number string) bool { return cardNumberPattern.MatchString(number) }

func (h ReceiptHeader) Validate() error {
	if !ValidReceiptNumber(h.Number) {
		return invalid("receipt_number", "must be CHECK followed by 3 to 5 digits")
	}
	if !ValidEmployeeID(h.EmployeeID) {
		return invalid("employee_id", "must be E followed by 3 digits")
	}
	if h.CardNumber != nil && !ValidCardNumber(*h.CardNumber) {
		return invalid("card_number", "must be 12 digits")
	}
	if h.IssuedAt.IsZero() {
		return invalid("issued_at", "is required")
	}
	if h.Total.IsNegative() {
		return invalid("total", "must be non-negative")
	}
	if h.Tax.IsNegative() {
		return invalid("tax", "must be non-negative")
	}
	return nil
}

func (it LineItem) Validate() error {
	if !ValidProductCode(it.ProductCode) {
		return invalid("product_code", "must be 12 digits")
	}
	if it.Quantity <= 0 {
		return invalid("quantity", "must be positive")
	}
	if it.UnitPrice.IsNegative() {
		return invalid("unit_price", "must be non-negative")
	}
	return nil
}

// Normalize fills defaults that the caller may omit.
func (r *CheckoutRequest) Normalize(now time.Time) {
	if r.Header.IssuedAt.IsZero() {
		r.Header.IssuedAt = now.UTC()
	}
	if r.Header.CardNumber != nil && *r.Header.CardNumber == "" {
		r.Header.CardNumber = nil
	}
}

// Validate is purely structural and never touches storage.
func (r CheckoutRequest) Validate() error {
	if err := r.Header.Validate(); err != nil {
		return err
	}
	if len(r.Items) == 0 {
		return invalid("items", "must not be empty")
	}

	seen := make(map[string]struct{}, len(r.Items))
	for i, it := range r.Items {
		if err := it.Validate(); err != nil {
			ve := err.(*ValidationError)
			return invalid(fmt.Sprintf("items[%d].%s", i, ve.Field), ve.Message)
		}
		if _, dup := seen[it.ProductCode]; dup {
			return invalid(fmt.Sprintf("items[%d].product_code", i), "is repeated")
		}
		seen[it.ProductCode] = struct{}{}
	}
	return nil
}
