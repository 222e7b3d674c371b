package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"schoolpay-backend/models"
)

type MySQLManager struct {
	db *sql.DB
}

// Crea una nuova istanza del gestore MySQL
func NewMySQLManager(dsn string) (*MySQLManager, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Verifica la connessione
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Imposta i parametri di connessione
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &MySQLManager{db: db}, nil
}

// Inizializza le tabelle necessarie
func (m *MySQLManager) InitTables() error {
	// Tabella per le transazioni bancarie estratte dalle email.
	// Il vincolo UNIQUE su transaction_id è la vera garanzia di deduplica:
	// il controllo di esistenza prima dell'insert è solo un fast path.
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			sender_name VARCHAR(255) NOT NULL,
			phone_number VARCHAR(20) NOT NULL,
			account_name VARCHAR(255) NOT NULL,
			account_number VARCHAR(64) NOT NULL,
			transaction_date VARCHAR(10) NOT NULL,
			transaction_time VARCHAR(8) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_transaction_id (transaction_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("errore nella creazione della tabella transactions: %v", err)
	}

	// Tabella per i pagamenti M-PESA ricevuti via callback
	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS mpesa_transactions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			trans_id VARCHAR(64) NOT NULL,
			phone_number VARCHAR(20) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			validated BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("errore nella creazione della tabella mpesa_transactions: %v", err)
	}

	// Tabella per i file caricati
	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS uploads (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			token VARCHAR(64) NOT NULL,
			file_name VARCHAR(255) NOT NULL,
			uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("errore nella creazione della tabella uploads: %v", err)
	}

	return nil
}

// TransactionExists verifica se una transazione è già stata registrata
func (m *MySQLManager) TransactionExists(transactionID string) (bool, error) {
	var id int64
	err := m.db.QueryRow(
		"SELECT id FROM transactions WHERE transaction_id = ?",
		transactionID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveTransaction salva una nuova transazione bancaria
func (m *MySQLManager) SaveTransaction(tx *models.BankTransaction) error {
	_, err := m.db.Exec(`
		INSERT INTO transactions (
			transaction_id, amount, sender_name, phone_number,
			account_name, account_number, transaction_date, transaction_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.TransactionID, tx.Amount, tx.SenderName, tx.PhoneNumber,
		tx.AccountName, tx.AccountNumber, tx.TransactionDate, tx.TransactionTime,
	)
	return err
}

// IsDuplicateEntry riconosce la violazione del vincolo di unicità (errore 1062).
// Con due sync concorrenti il controllo di esistenza può passare per entrambi:
// in quel caso l'indice unico rifiuta il secondo insert e va trattato come skip.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// GetTransactions carica le transazioni, opzionalmente filtrate per data
func (m *MySQLManager) GetTransactions(startDate, endDate string) ([]models.BankTransaction, error) {
	query := "SELECT id, transaction_id, amount, sender_name, phone_number, account_name, account_number, transaction_date, transaction_time, created_at FROM transactions"
	var params []interface{}

	if startDate != "" && endDate != "" {
		query += " WHERE transaction_date BETWEEN ? AND ?"
		params = append(params, startDate, endDate)
	} else if startDate != "" {
		query += " WHERE transaction_date = ?"
		params = append(params, startDate)
	}

	rows, err := m.db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.BankTransaction
	for rows.Next() {
		var tx models.BankTransaction
		if err := rows.Scan(
			&tx.ID, &tx.TransactionID, &tx.Amount, &tx.SenderName, &tx.PhoneNumber,
			&tx.AccountName, &tx.AccountNumber, &tx.TransactionDate, &tx.TransactionTime,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// GetDailyBankTotals restituisce le somme giornaliere delle transazioni bancarie
func (m *MySQLManager) GetDailyBankTotals() ([]models.DailyTotal, error) {
	rows, err := m.db.Query(`
		SELECT transaction_date AS date, SUM(amount) AS total
		FROM transactions
		GROUP BY transaction_date
		ORDER BY transaction_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDailyTotals(rows)
}

// GetMpesaTransactionsByPhone carica i pagamenti M-PESA per un numero di telefono
func (m *MySQLManager) GetMpesaTransactionsByPhone(phoneNumber string) ([]models.MpesaTransaction, error) {
	rows, err := m.db.Query(
		"SELECT id, trans_id, phone_number, amount, validated, created_at FROM mpesa_transactions WHERE phone_number = ?",
		phoneNumber,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.MpesaTransaction
	for rows.Next() {
		var tx models.MpesaTransaction
		if err := rows.Scan(&tx.ID, &tx.TransID, &tx.PhoneNumber, &tx.Amount, &tx.Validated, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// SaveMpesaTransaction registra un pagamento M-PESA ricevuto via callback
func (m *MySQLManager) SaveMpesaTransaction(tx *models.MpesaTransaction) error {
	_, err := m.db.Exec(
		"INSERT INTO mpesa_transactions (trans_id, phone_number, amount) VALUES (?, ?, ?)",
		tx.TransID, tx.PhoneNumber, tx.Amount,
	)
	return err
}

// GetDailyMpesaTotals restituisce le somme giornaliere dei pagamenti M-PESA
func (m *MySQLManager) GetDailyMpesaTotals() ([]models.DailyTotal, error) {
	rows, err := m.db.Query(`
		SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS date, SUM(amount) AS total
		FROM mpesa_transactions
		GROUP BY DATE_FORMAT(created_at, '%Y-%m-%d')
		ORDER BY DATE_FORMAT(created_at, '%Y-%m-%d')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDailyTotals(rows)
}

// ValidateMpesaTransaction marca un pagamento come validato.
// Restituisce false se nessuna riga è stata aggiornata.
func (m *MySQLManager) ValidateMpesaTransaction(id string) (bool, error) {
	result, err := m.db.Exec("UPDATE mpesa_transactions SET validated = 1 WHERE id = ?", id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveUpload registra un file caricato
func (m *MySQLManager) SaveUpload(token, fileName string) error {
	_, err := m.db.Exec("INSERT INTO uploads (token, file_name) VALUES (?, ?)", token, fileName)
	return err
}

// GetLatestUpload restituisce l'ultimo file caricato, nil se non ce ne sono
func (m *MySQLManager) GetLatestUpload() (*models.Upload, error) {
	var upload models.Upload
	err := m.db.QueryRow(
		"SELECT id, token, file_name, uploaded_at FROM uploads ORDER BY id DESC LIMIT 1",
	).Scan(&upload.ID, &upload.Token, &upload.FileName, &upload.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// Chiude la connessione al database
func (m *MySQLManager) Close() error {
	return m.db.Close()
}

func scanDailyTotals(rows *sql.Rows) ([]models.DailyTotal, error) {
	var totals []models.DailyTotal
	for rows.Next() {
		var t models.DailyTotal
		if err := rows.Scan(&t.Date, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
