package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"schoolpay-backend/db"
	"schoolpay-backend/models"
	"schoolpay-backend/utils"
)

// SetupAPIRoutes configura tutte le rotte API
func SetupAPIRoutes(router *gin.Engine, dbManager DBManager, syncer MailSyncer, mailer ReceiptSender, gateway PaymentGateway, config *utils.Config) {
	// Abilita CORS
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Newlife Preparatory payments backend"})
	})

	// WebSocket con le transazioni registrate dal sync email
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(c.Writer, c.Request)
	})

	// API per elencare le tabelle esposte
	router.GET("/tables", func(c *gin.Context) {
		c.JSON(http.StatusOK, dbManager.ListTables())
	})

	// API per leggere le prime righe di una tabella
	router.GET("/table/:name", func(c *gin.Context) {
		tableName := c.Param("name")

		rows, err := dbManager.GetTableRows(tableName)
		if err != nil {
			if errors.Is(err, db.ErrTableNotAllowed) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Tabella non consentita: %s", tableName)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Errore nella lettura della tabella: %v", err)})
			return
		}

		if rows == nil {
			rows = []map[string]interface{}{}
		}
		c.JSON(http.StatusOK, rows)
	})

	// API per inserire una riga in una tabella
	router.POST("/table/:name", func(c *gin.Context) {
		tableName := c.Param("name")

		var values map[string]interface{}
		if err := c.BindJSON(&values); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Formato JSON non valido"})
			return
		}

		if err := dbManager.InsertTableRow(tableName, values); err != nil {
			if errors.Is(err, db.ErrTableNotAllowed) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Tabella non consentita: %s", tableName)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Errore nell'inserimento della riga: %v", err)})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"status": "success"})
	})

	// API per aggiornare una riga per id
	router.PUT("/table/:name/:id", func(c *gin.Context) {
		tableName := c.Param("name")
		id := c.Param("id")

		var values map[string]interface{}
		if err := c.BindJSON(&values); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Formato JSON non valido"})
			return
		}

		if err := dbManager.UpdateTableRow(tableName, id, values); err != nil {
			if errors.Is(err, db.ErrTableNotAllowed) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Tabella non consentita: %s", tableName)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Errore nell'aggiornamento della riga: %v", err)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	// API per eliminare una riga per id
	router.DELETE("/table/:name/:id", func(c *gin.Context) {
		tableName := c.Param("name")
		id := c.Param("id")

		if err := dbManager.DeleteTableRow(tableName, id); err != nil {
			if errors.Is(err, db.ErrTableNotAllowed) {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Tabella non consentita: %s", tableName)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Errore nell'eliminazione della riga: %v", err)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	// API per le transazioni bancarie, filtrate per data
	router.GET("/api/data", func(c *gin.Context) {
		startDate := c.Query("startDate")
		endDate := c.Query("endDate")

		transactions, err := dbManager.GetTransactions(startDate, endDate)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Failed to fetch data"})
			return
		}

		if transactions == nil {
			transactions = []models.BankTransaction{}
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": transactions})
	})

	// API per i pagamenti M-PESA di un numero di telefono
	router.GET("/api/transactions", func(c *gin.Context) {
		mobileNumber := c.Query("mobileNumber")
		if mobileNumber == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Mobile number is required"})
			return
		}

		transactions, err := dbManager.GetMpesaTransactionsByPhone(mobileNumber)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}

		if transactions == nil {
			transactions = []models.MpesaTransaction{}
		}
		c.JSON(http.StatusOK, transactions)
	})

	// API per le somme giornaliere M-PESA. Lancia anche un sync della
	// casella email, come faceva il pannello originale
	router.GET("/api/mpesa-transactions", func(c *gin.Context) {
		syncer.TriggerSync()

		totals, err := dbManager.GetDailyMpesaTotals()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if totals == nil {
			totals = []models.DailyTotal{}
		}
		c.JSON(http.StatusOK, totals)
	})

	// API per le somme giornaliere delle transazioni bancarie
	router.GET("/api/bank-transactions", func(c *gin.Context) {
		totals, err := dbManager.GetDailyBankTotals()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if totals == nil {
			totals = []models.DailyTotal{}
		}
		c.JSON(http.StatusOK, totals)
	})

	// Callback del provider M-PESA: risponde sempre 200, la registrazione
	// del pagamento è best effort
	router.POST("/api/online/callback", func(c *gin.Context) {
		var payload models.MpesaTransaction
		if err := c.ShouldBindJSON(&payload); err == nil && payload.TransID != "" {
			if err := dbManager.SaveMpesaTransaction(&payload); err != nil {
				log.Printf("Errore nel salvataggio del callback M-PESA %s: %v", payload.TransID, err)
			}
		} else {
			log.Println("Callback M-PESA ricevuto senza transazione riconoscibile")
		}

		c.Status(http.StatusOK)
	})

	// API per validare un pagamento M-PESA
	router.PUT("/api/transactions/validate/:id", func(c *gin.Context) {
		id := c.Param("id")

		found, err := dbManager.ValidateMpesaTransaction(id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to validate transaction"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"message": "Transaction not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Transaction validated successfully"})
	})

	// API per inviare la ricevuta di una transazione via email
	router.POST("/send-email", func(c *gin.Context) {
		var request models.ReceiptRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Formato JSON non valido"})
			return
		}

		if request.Transaction == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'transaction' field in request body"})
			return
		}

		if err := mailer.SendReceipt(request.Transaction); err != nil {
			log.Printf("Errore nell'invio della ricevuta: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error sending email"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Email sent successfully!"})
	})

	// API per caricare un file .xlsx
	router.POST("/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}

		ext := filepath.Ext(file.Filename)
		if !strings.EqualFold(ext, ".xlsx") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only .xlsx files are allowed"})
			return
		}

		// Nome univoco sul disco, come multer con Date.now()
		storedName := fmt.Sprintf("%d%s", time.Now().UnixMilli(), ext)
		if err := c.SaveUploadedFile(file, filepath.Join(config.UploadDir, storedName)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Errore nel salvataggio del file: %v", err)})
			return
		}

		token := uuid.New().String()
		if err := dbManager.SaveUpload(token, storedName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database insertion failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "File uploaded successfully", "fileName": storedName})
	})

	// API per scaricare l'ultimo file caricato
	router.GET("/latest-upload", func(c *gin.Context) {
		upload, err := dbManager.GetLatestUpload()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch latest upload"})
			return
		}
		if upload == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No files found in the database"})
			return
		}

		filePath := filepath.Join(config.UploadDir, upload.FileName)
		if _, err := os.Stat(filePath); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found in uploads folder"})
			return
		}

		c.File(filePath)
	})

	// API per creare un ordine di pagamento sul gateway
	router.POST("/api/pay", func(c *gin.Context) {
		var payment models.PaymentRequest
		if err := c.BindJSON(&payment); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Formato JSON non valido"})
			return
		}

		token, err := gateway.RequestToken()
		if err != nil {
			log.Printf("Errore nel recupero del token Pesapal: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get Pesapal token"})
			return
		}

		response, err := gateway.SubmitOrder(token, payment)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		// Passa la risposta del gateway (con il link di pagamento) al frontend
		c.JSON(http.StatusOK, response)
	})

	// Endpoint di autenticazione
	router.POST("/api/auth/login", func(c *gin.Context) {
		var request models.LoginRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Formato JSON non valido"})
			return
		}

		if request.Username == config.Auth.Username && request.Password == config.Auth.Password {
			c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": config.Auth.Token})
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
	})

	// Coordinate bancarie statiche della scuola
	router.GET("/api/payment/bank-details", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.BankDetails{
			Bank:              "KCB Bank",
			AccountNumber:     "1330645855",
			PaybillNumber:     "522522",
			TillAccountNumber: "7884602",
			BusinessName:      "Newlife Preparatory",
			Message:           "Cash payments are not accepted. Please forward the child's name to the school clerk for receipting.",
		})
	})

	// Endpoint di test: verifica anche che il database risponda e riporta
	// le migration applicate
	router.GET("/api/test", func(c *gin.Context) {
		applied, err := dbManager.GetAppliedMigrations()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Database non raggiungibile",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"message":    "Il backend funziona correttamente",
			"migrations": applied,
		})
	})
}
