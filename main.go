package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"schoolpay-backend/db"
	"schoolpay-backend/handlers"
	"schoolpay-backend/mail"
	"schoolpay-backend/mailer"
	"schoolpay-backend/models"
	"schoolpay-backend/pesapal"
	"schoolpay-backend/utils"
)

func main() {
	// Carica la configurazione
	config, err := utils.LoadConfig("config.json")
	if err != nil {
		fmt.Println("Errore nel caricamento della configurazione:", err)
		// Usa valori predefiniti se la configurazione non è disponibile
		config = utils.DefaultConfig()
	}

	// Inizializza il database MySQL
	dbManager, err := db.NewMySQLManager(config.Database.GetDSN())
	if err != nil {
		fmt.Println("Errore nella connessione al database MySQL:", err)
		return
	}
	defer dbManager.Close()

	// Inizializza le tabelle
	if err := dbManager.InitTables(); err != nil {
		fmt.Println("Errore nell'inizializzazione delle tabelle:", err)
		return
	}

	// Applica le migration
	if err := dbManager.ApplyMigrations(); err != nil {
		fmt.Println("Errore nell'applicazione delle migration:", err)
		return
	}

	// Crea la directory degli upload se non esiste
	if err := os.MkdirAll(config.UploadDir, 0755); err != nil {
		fmt.Println("Errore nella creazione della directory degli upload:", err)
		return
	}

	// Servizio di sync delle notifiche bancarie
	syncService := mail.NewSyncService(config.Mail, dbManager, mail.Dial)
	syncService.SetBroadcast(func(tx *models.BankTransaction) {
		handlers.BroadcastToClients("transaction", tx)
	})
	syncService.Start()

	receiptMailer := mailer.New(config.SMTP)
	gateway := pesapal.NewClient(config.Pesapal)

	// Configura il server API
	router := gin.Default()
	handlers.SetupAPIRoutes(router, dbManager, syncService, receiptMailer, gateway, config)

	// Avvia il server HTTP in una goroutine
	go func() {
		port := fmt.Sprintf(":%d", config.Server.Port)
		if err := router.Run(port); err != nil {
			fmt.Printf("Errore nell'avvio del server: %v\n", err)
		}
	}()

	log.Printf("Server API avviato su http://localhost:%d", config.Server.Port)

	// Gestisci chiusura corretta
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("Arresto in corso...")
	syncService.Stop()
}
