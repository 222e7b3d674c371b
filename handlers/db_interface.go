package handlers

import (
	"schoolpay-backend/db"
	"schoolpay-backend/models"
)

// DBManager è un'interfaccia che definisce i metodi necessari per interagire con il database
type DBManager interface {
	ListTables() []string
	GetTableRows(table string) ([]map[string]interface{}, error)
	InsertTableRow(table string, values map[string]interface{}) error
	UpdateTableRow(table, id string, values map[string]interface{}) error
	DeleteTableRow(table, id string) error
	GetTransactions(startDate, endDate string) ([]models.BankTransaction, error)
	GetDailyBankTotals() ([]models.DailyTotal, error)
	GetMpesaTransactionsByPhone(phoneNumber string) ([]models.MpesaTransaction, error)
	GetDailyMpesaTotals() ([]models.DailyTotal, error)
	SaveMpesaTransaction(tx *models.MpesaTransaction) error
	ValidateMpesaTransaction(id string) (bool, error)
	SaveUpload(token, fileName string) error
	GetLatestUpload() (*models.Upload, error)
	GetAppliedMigrations() ([]db.Migration, error)
	Close() error
}

// ReceiptSender invia la ricevuta di una transazione via email
type ReceiptSender interface {
	SendReceipt(tx *models.BankTransaction) error
}

// PaymentGateway è il client verso il provider di pagamento
type PaymentGateway interface {
	RequestToken() (string, error)
	SubmitOrder(token string, payment models.PaymentRequest) (map[string]interface{}, error)
}

// MailSyncer lancia un ciclo di sync della casella email
type MailSyncer interface {
	TriggerSync()
}
