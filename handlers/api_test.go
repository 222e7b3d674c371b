package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolpay-backend/db"
	"schoolpay-backend/models"
	"schoolpay-backend/utils"
)

type fakeDBManager struct {
	tables          []string
	transactions    []models.BankTransaction
	mpesa           []models.MpesaTransaction
	bankTotals      []models.DailyTotal
	mpesaTotals     []models.DailyTotal
	savedMpesa      []*models.MpesaTransaction
	validatedIDs    []string
	validateFound   bool
	uploads         map[string]string
	latestUpload    *models.Upload
	applied         []db.Migration
	appliedErr      error
	tableRowsErr    error
	transactionsErr error
}

func newFakeDBManager() *fakeDBManager {
	return &fakeDBManager{
		tables:        []string{"mpesa_transactions", "transactions", "uploads"},
		validateFound: true,
		uploads:       make(map[string]string),
	}
}

func (f *fakeDBManager) ListTables() []string { return f.tables }

func (f *fakeDBManager) GetTableRows(table string) ([]map[string]interface{}, error) {
	if f.tableRowsErr != nil {
		return nil, f.tableRowsErr
	}
	return []map[string]interface{}{{"id": int64(1)}}, nil
}

func (f *fakeDBManager) InsertTableRow(table string, values map[string]interface{}) error {
	if f.tableRowsErr != nil {
		return f.tableRowsErr
	}
	return nil
}

func (f *fakeDBManager) UpdateTableRow(table, id string, values map[string]interface{}) error {
	return f.tableRowsErr
}

func (f *fakeDBManager) DeleteTableRow(table, id string) error {
	return f.tableRowsErr
}

func (f *fakeDBManager) GetTransactions(startDate, endDate string) ([]models.BankTransaction, error) {
	if f.transactionsErr != nil {
		return nil, f.transactionsErr
	}
	return f.transactions, nil
}

func (f *fakeDBManager) GetDailyBankTotals() ([]models.DailyTotal, error) {
	return f.bankTotals, nil
}

func (f *fakeDBManager) GetMpesaTransactionsByPhone(phoneNumber string) ([]models.MpesaTransaction, error) {
	return f.mpesa, nil
}

func (f *fakeDBManager) GetDailyMpesaTotals() ([]models.DailyTotal, error) {
	return f.mpesaTotals, nil
}

func (f *fakeDBManager) SaveMpesaTransaction(tx *models.MpesaTransaction) error {
	f.savedMpesa = append(f.savedMpesa, tx)
	return nil
}

func (f *fakeDBManager) ValidateMpesaTransaction(id string) (bool, error) {
	f.validatedIDs = append(f.validatedIDs, id)
	return f.validateFound, nil
}

func (f *fakeDBManager) SaveUpload(token, fileName string) error {
	f.uploads[token] = fileName
	return nil
}

func (f *fakeDBManager) GetLatestUpload() (*models.Upload, error) {
	return f.latestUpload, nil
}

func (f *fakeDBManager) GetAppliedMigrations() ([]db.Migration, error) {
	if f.appliedErr != nil {
		return nil, f.appliedErr
	}
	return f.applied, nil
}

func (f *fakeDBManager) Close() error { return nil }

type fakeSyncer struct {
	triggered int
}

func (f *fakeSyncer) TriggerSync() { f.triggered++ }

type fakeMailer struct {
	sent    []*models.BankTransaction
	sendErr error
}

func (f *fakeMailer) SendReceipt(tx *models.BankTransaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

type fakeGateway struct {
	token    string
	tokenErr error
	response map[string]interface{}
	orderErr error
	orders   []models.PaymentRequest
}

func (f *fakeGateway) RequestToken() (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token, nil
}

func (f *fakeGateway) SubmitOrder(token string, payment models.PaymentRequest) (map[string]interface{}, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, payment)
	return f.response, nil
}

type testEnv struct {
	router  *gin.Engine
	manager *fakeDBManager
	syncer  *fakeSyncer
	mailer  *fakeMailer
	gateway *fakeGateway
	config  *utils.Config
}

func newTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		router:  gin.New(),
		manager: newFakeDBManager(),
		syncer:  &fakeSyncer{},
		mailer:  &fakeMailer{},
		gateway: &fakeGateway{token: "token-abc", response: map[string]interface{}{"redirect_url": "https://pay.example/order"}},
		config:  utils.DefaultConfig(),
	}
	env.config.UploadDir = t.TempDir()

	SetupAPIRoutes(env.router, env.manager, env.syncer, env.mailer, env.gateway, env.config)
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/auth/login", models.LoginRequest{
		Username: env.config.Auth.Username,
		Password: env.config.Auth.Password,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Login successful", response["message"])
	assert.Equal(t, env.config.Auth.Token, response["token"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/auth/login", models.LoginRequest{
		Username: "admin",
		Password: "sbagliata",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")
}

func TestBankDetails(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/payment/bank-details", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var details models.BankDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, "KCB Bank", details.Bank)
	assert.Equal(t, "1330645855", details.AccountNumber)
	assert.Equal(t, "522522", details.PaybillNumber)
	assert.Equal(t, "7884602", details.TillAccountNumber)
	assert.Equal(t, "Newlife Preparatory", details.BusinessName)
}

func TestMpesaTransactionsRequiresMobileNumber(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/transactions", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Mobile number is required")
}

func TestMpesaTransactionsByPhone(t *testing.T) {
	env := newTestEnv(t)
	env.manager.mpesa = []models.MpesaTransaction{
		{ID: 1, TransID: "QX1", PhoneNumber: "0712345678", Amount: decimal.NewFromInt(500)},
	}

	w := env.do("GET", "/api/transactions?mobileNumber=0712345678", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var transactions []models.MpesaTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transactions))
	require.Len(t, transactions, 1)
	assert.Equal(t, "QX1", transactions[0].TransID)
}

func TestMpesaTotalsTriggersSync(t *testing.T) {
	env := newTestEnv(t)
	env.manager.mpesaTotals = []models.DailyTotal{
		{Date: "2024-02-01", Total: decimal.NewFromInt(1500)},
	}

	w := env.do("GET", "/api/mpesa-transactions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.syncer.triggered)

	var totals []models.DailyTotal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	require.Len(t, totals, 1)
	assert.Equal(t, "2024-02-01", totals[0].Date)
}

func TestBankTransactionTotals(t *testing.T) {
	env := newTestEnv(t)
	env.manager.bankTotals = []models.DailyTotal{
		{Date: "01/02/2024", Total: decimal.NewFromInt(1000)},
	}

	w := env.do("GET", "/api/bank-transactions", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var totals []models.DailyTotal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	require.Len(t, totals, 1)
	assert.Equal(t, "01/02/2024", totals[0].Date)
}

func TestGetDataWithDateFilter(t *testing.T) {
	env := newTestEnv(t)
	env.manager.transactions = []models.BankTransaction{
		{TransactionID: "AB12", Amount: decimal.NewFromInt(1000), TransactionDate: "01/02/2024"},
	}

	w := env.do("GET", "/api/data?startDate=01/02/2024&endDate=28/02/2024", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status string                   `json:"status"`
		Data   []models.BankTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "success", response.Status)
	require.Len(t, response.Data, 1)
	assert.Equal(t, "AB12", response.Data[0].TransactionID)
}

func TestGetDataEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/data", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestMpesaCallbackAlwaysOK(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/online/callback", map[string]interface{}{
		"trans_id":     "QX1",
		"phone_number": "0712345678",
		"amount":       "500",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.manager.savedMpesa, 1)
	assert.Equal(t, "QX1", env.manager.savedMpesa[0].TransID)

	// Anche un payload irriconoscibile ottiene 200
	w = env.do("POST", "/api/online/callback", map[string]interface{}{"foo": "bar"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.manager.savedMpesa, 1)
}

func TestValidateTransaction(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("PUT", "/api/transactions/validate/42", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Transaction validated successfully")
	assert.Equal(t, []string{"42"}, env.manager.validatedIDs)
}

func TestValidateTransactionNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.manager.validateFound = false

	w := env.do("PUT", "/api/transactions/validate/999", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Transaction not found")
}

func TestSendEmailMissingTransaction(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/send-email", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing 'transaction' field in request body")
	assert.Empty(t, env.mailer.sent)
}

func TestSendEmailSuccess(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/send-email", models.ReceiptRequest{
		Transaction: &models.BankTransaction{
			TransactionID: "AB12",
			Amount:        decimal.NewFromInt(1000),
			SenderName:    "John Doe",
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Email sent successfully!")
	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "AB12", env.mailer.sent[0].TransactionID)
}

func TestSendEmailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.sendErr = errors.New("smtp timeout")

	w := env.do("POST", "/send-email", models.ReceiptRequest{
		Transaction: &models.BankTransaction{TransactionID: "AB12"},
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Error sending email")
}

func TestListTables(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/tables", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var tables []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tables))
	assert.Equal(t, []string{"mpesa_transactions", "transactions", "uploads"}, tables)
}

func TestTableNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.manager.tableRowsErr = db.ErrTableNotAllowed

	w := env.do("GET", "/table/users", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Tabella non consentita")

	w = env.do("POST", "/table/users", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("PUT", "/table/users/1", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do("DELETE", "/table/users/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTableCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/table/transactions", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("POST", "/table/transactions", map[string]interface{}{"transaction_id": "AB12"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do("PUT", "/table/transactions/1", map[string]interface{}{"sender_name": "Jane"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("DELETE", "/table/transactions/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaySubmitsOrder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/pay", models.PaymentRequest{
		OrderID:   "ORD-1",
		Amount:    2500,
		Email:     "parent@example.com",
		Phone:     "0712345678",
		FirstName: "John",
		LastName:  "Doe",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "redirect_url")
	require.Len(t, env.gateway.orders, 1)
	assert.Equal(t, "ORD-1", env.gateway.orders[0].OrderID)
}

func TestPayTokenFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.tokenErr = errors.New("invalid consumer key")

	w := env.do("POST", "/api/pay", models.PaymentRequest{OrderID: "ORD-1"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to get Pesapal token")
}

func TestLatestUploadNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/latest-upload", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No files found in the database")
}

func TestLatestUploadServesFile(t *testing.T) {
	env := newTestEnv(t)

	content := []byte("PK\x03\x04 contenuto xlsx")
	require.NoError(t, os.WriteFile(filepath.Join(env.config.UploadDir, "1706780100000.xlsx"), content, 0644))
	env.manager.latestUpload = &models.Upload{ID: 1, Token: "tok-1", FileName: "1706780100000.xlsx"}

	w := env.do("GET", "/latest-upload", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}

func TestLatestUploadMissingOnDisk(t *testing.T) {
	env := newTestEnv(t)
	env.manager.latestUpload = &models.Upload{ID: 1, Token: "tok-1", FileName: "sparito.xlsx"}

	w := env.do("GET", "/latest-upload", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "File not found in uploads folder")
}

func TestUploadRejectsNonXlsx(t *testing.T) {
	env := newTestEnv(t)

	body := new(bytes.Buffer)
	writer := newMultipartFile(t, body, "report.pdf", []byte("%PDF-1.4"))

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", writer)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Only .xlsx files are allowed")
}

func TestUploadXlsx(t *testing.T) {
	env := newTestEnv(t)

	body := new(bytes.Buffer)
	writer := newMultipartFile(t, body, "fees.xlsx", []byte("PK\x03\x04"))

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", writer)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "File uploaded successfully")
	assert.Len(t, env.manager.uploads, 1)
}

// newMultipartFile scrive un form multipart con un singolo campo "file" e
// restituisce l'header Content-Type da usare nella richiesta
func newMultipartFile(t *testing.T, body *bytes.Buffer, fileName string, content []byte) string {
	t.Helper()

	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return writer.FormDataContentType()
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("OPTIONS", "/api/data", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTestEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.manager.applied = []db.Migration{
		{Version: 1, Description: "Initial schema"},
		{Version: 2, Description: "Add transaction_id unique index and validated flag"},
	}

	w := env.do("GET", "/api/test", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	var response struct {
		Migrations []db.Migration `json:"migrations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Migrations, 2)
	assert.Equal(t, 2, response.Migrations[1].Version)
}

func TestTestEndpointDatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	env.manager.appliedErr = errors.New("connection refused")

	w := env.do("GET", "/api/test", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Database non raggiungibile")
}
