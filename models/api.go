package models

// ReceiptRequest è il corpo della richiesta POST /send-email
type ReceiptRequest struct {
	Transaction *BankTransaction `json:"transaction"`
}

// PaymentRequest è il corpo della richiesta POST /api/pay
type PaymentRequest struct {
	OrderID     string  `json:"orderId"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
}

// LoginRequest è il corpo della richiesta POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BankDetails contiene le coordinate bancarie statiche della scuola
type BankDetails struct {
	Bank              string `json:"bank"`
	AccountNumber     string `json:"accountNumber"`
	PaybillNumber     string `json:"paybillNumber"`
	TillAccountNumber string `json:"tillAccountNumber"`
	BusinessName      string `json:"businessName"`
	Message           string `json:"message"`
}
