package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MpesaTransaction rappresenta un pagamento M-PESA ricevuto tramite callback
type MpesaTransaction struct {
	ID          int64           `json:"id"`
	TransID     string          `json:"trans_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Validated   bool            `json:"validated"`
	CreatedAt   time.Time       `json:"created_at"`
}
