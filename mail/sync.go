package mail

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"schoolpay-backend/db"
	"schoolpay-backend/models"
	"schoolpay-backend/utils"
)

// TransactionStore è la porzione di database usata dal sync
type TransactionStore interface {
	TransactionExists(transactionID string) (bool, error)
	SaveTransaction(tx *models.BankTransaction) error
}

// SyncSummary riassume l'esito di un ciclo di sync. I fallimenti dello
// store non interrompono il batch: vengono contati e riportati qui.
type SyncSummary struct {
	Fetched     int `json:"fetched"`
	Inserted    int `json:"inserted"`
	Duplicates  int `json:"duplicates"`
	Skipped     int `json:"skipped"`
	StoreErrors int `json:"storeErrors"`
}

// SyncService scarica periodicamente le notifiche bancarie dalla casella
// IMAP e registra le transazioni non ancora viste
type SyncService struct {
	config    utils.MailConfig
	store     TransactionStore
	dial      DialFunc
	broadcast func(*models.BankTransaction)

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
}

// NewSyncService crea un nuovo servizio di sync
func NewSyncService(config utils.MailConfig, store TransactionStore, dial DialFunc) *SyncService {
	return &SyncService{
		config: config,
		store:  store,
		dial:   dial,
	}
}

// SetBroadcast imposta la callback invocata per ogni transazione inserita
func (s *SyncService) SetBroadcast(fn func(*models.BankTransaction)) {
	s.broadcast = fn
}

// Start avvia il polling periodico della casella
func (s *SyncService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		log.Println("Il servizio di sync email è già in esecuzione")
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	log.Println("Servizio di sync email avviato")

	go func() {
		ticker := time.NewTicker(time.Duration(s.config.PollInterval) * time.Second)
		defer ticker.Stop()

		// Esegui subito il primo sync
		s.runOnce()

		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-stop:
				log.Println("Servizio di sync email fermato")
				return
			}
		}
	}()
}

// Stop ferma il polling. La chiusura del canale non blocca, quindi Stop
// ritorna subito anche con un sync in corso.
func (s *SyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.isRunning = false
	close(s.stopChan)
}

// TriggerSync lancia un sync asincrono fuori dal ciclo di polling
func (s *SyncService) TriggerSync() {
	go s.runOnce()
}

// runOnce esegue un sync con la deadline configurata
func (s *SyncService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.SyncTimeout)*time.Second)
	defer cancel()

	summary, err := s.SyncOnce(ctx)
	if err != nil {
		log.Printf("Sync email fallito: %v", err)
		return
	}
	log.Printf("Sync email completato: %d messaggi, %d inseriti, %d duplicati, %d scartati, %d errori store",
		summary.Fetched, summary.Inserted, summary.Duplicates, summary.Skipped, summary.StoreErrors)
}

// SyncOnce esegue un singolo ciclo: connessione, ricerca per mittente,
// parsing sequenziale e insert deduplicato. Gli errori di connessione e
// autenticazione sono fatali per il run; i messaggi non riconosciuti e i
// fallimenti dello store fanno proseguire il batch.
func (s *SyncService) SyncOnce(ctx context.Context) (SyncSummary, error) {
	var summary SyncSummary

	mailbox, err := s.dial(s.config)
	if err != nil {
		return summary, fmt.Errorf("errore nella connessione alla casella: %v", err)
	}
	// La connessione viene chiusa su ogni percorso di uscita
	defer mailbox.Close()

	seqNums, err := mailbox.SearchFrom(s.config.Sender)
	if err != nil {
		return summary, fmt.Errorf("errore nella ricerca delle notifiche: %v", err)
	}

	if len(seqNums) == 0 {
		log.Printf("Nessuna notifica da %s", s.config.Sender)
		return summary, nil
	}

	messages, err := mailbox.FetchRaw(seqNums)
	if err != nil {
		return summary, fmt.Errorf("errore nel fetch delle notifiche: %v", err)
	}

	summary.Fetched = len(messages)
	log.Printf("Trovate %d notifiche da %s", len(messages), s.config.Sender)

	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return summary, fmt.Errorf("sync interrotto: %v", ctx.Err())
		default:
		}

		result := ParseMessage(msg.Content())
		switch result.Reason {
		case SkipEmptyMessage:
			log.Printf("Messaggio %d vuoto, salto", msg.SeqNum)
			summary.Skipped++
			continue
		case SkipNoReadableContent:
			log.Printf("Messaggio %d senza contenuto leggibile, salto", msg.SeqNum)
			summary.Skipped++
			continue
		case SkipNoPatternMatch:
			// Formato inatteso: scarto silenzioso, mai un record parziale
			summary.Skipped++
			continue
		}

		tx := result.Transaction

		exists, err := s.store.TransactionExists(tx.TransactionID)
		if err != nil {
			log.Printf("Errore nella verifica della transazione %s: %v", tx.TransactionID, err)
			summary.StoreErrors++
			continue
		}
		if exists {
			summary.Duplicates++
			continue
		}

		if err := s.store.SaveTransaction(tx); err != nil {
			// L'indice unico può rifiutare l'insert se un altro run è
			// passato tra il controllo di esistenza e l'insert
			if db.IsDuplicateEntry(err) {
				summary.Duplicates++
				continue
			}
			log.Printf("Errore nel salvataggio della transazione %s: %v", tx.TransactionID, err)
			summary.StoreErrors++
			continue
		}

		summary.Inserted++
		log.Printf("Transazione %s registrata", tx.TransactionID)

		if s.broadcast != nil {
			s.broadcast(tx)
		}
	}

	return summary, nil
}
