package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankTransaction rappresenta una transazione bancaria estratta da una
// email di notifica. TransactionID è la chiave naturale usata per la
// deduplica: una notifica riprocessata non deve produrre una seconda riga.
type BankTransaction struct {
	ID              int64           `json:"id"`
	TransactionID   string          `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	SenderName      string          `json:"sender_name"`
	PhoneNumber     string          `json:"phone_number"`
	AccountName     string          `json:"account_name"`
	AccountNumber   string          `json:"account_number"`
	TransactionDate string          `json:"transaction_date"` // DD/MM/YYYY, salvata com'è
	TransactionTime string          `json:"transaction_time"` // HH:MM:00, 24 ore
	CreatedAt       time.Time       `json:"created_at"`
}

// DailyTotal rappresenta la somma giornaliera delle transazioni
type DailyTotal struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}
