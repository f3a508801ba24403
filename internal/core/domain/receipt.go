package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReceiptHeader struct {
	Number     string          `json:"receipt_number"`
	EmployeeID string          `json:"employee_id"`
	CardNumber *string         `json:"card_number,omitempty"`
	IssuedAt   time.Time       `json:"issued_at"`
	Total      decimal.Decimal `json:"total"`
	Tax        decimal.Decimal `json:"tax"`
}

type SaleLine struct {
	ProductCode   string          `json:"product_code"`
	ReceiptNumber string          `json:"receipt_number"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"` // price charged, not the current inventory price
}

// LineItem is one requested sale line before it is bound to a receipt.
type LineItem struct {
	ProductCode string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type CheckoutRequest struct {
	Header ReceiptHeader
	Items  []LineItem
}

// Lines binds the requested items to the receipt number, keeping submitted order.
func (r CheckoutRequest) Lines() []SaleLine {
	lines := make([]SaleLine, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, SaleLine{
			ProductCode:   it.ProductCode,
			ReceiptNumber: r.Header.Number,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
		})
	}
	return lines
}

type Receipt struct {
	Header ReceiptHeader `json:"header"`
	Lines  []SaleLine    `json:"lines"`
}

type ReceiptFilter struct {
	EmployeeID string
	From       time.Time
	To         time.Time
}

type CheckoutState string

const (
	CheckoutReceived            CheckoutState = "received"
	CheckoutValidating          CheckoutState = "validating"
	CheckoutRejected            CheckoutState = "rejected"
	CheckoutLockingAndVerifying CheckoutState = "locking_and_verifying"
	CheckoutWriting             CheckoutState = "writing"
	CheckoutRolledBack          CheckoutState = "rolled_back"
	CheckoutCommitted           CheckoutState = "committed"
)

func (s CheckoutState) Terminal() bool {
	switch s {
	case CheckoutRejected, CheckoutRolledBack, CheckoutCommitted:
		return true
	}
	return false
}

type LoyaltyCard struct {
	Number  string `json:"card_number"`
	Surname string `json:"surname"`
	Name    string `json:"name"`
	Percent int    `json:"percent"`
}

// CardFilter matches a case-insensitive fragment of the surname or name, and an exact percent.
type CardFilter struct {
	Search  string
	Percent *int
}
