package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Migration rappresenta una singola migration del database.
// Apply esegue le DDL una alla volta: MySQL non supporta IF NOT EXISTS
// su indici e colonne e il driver invia una sola statement per Exec,
// quindi l'esistenza va verificata su information_schema prima di agire.
type Migration struct {
	Version     int                    `json:"version"`
	Description string                 `json:"description"`
	Apply       func(tx *sql.Tx) error `json:"-"`
}

// Tutte le migration disponibili in ordine di versione
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		// Già applicata da InitTables(), registrata solo per il tracking
	},
	{
		Version:     2,
		Description: "Add transaction_id unique index and validated flag",
		Apply: func(tx *sql.Tx) error {
			// Indice unico su transaction_id per i database creati prima che
			// InitTables() lo includesse: è la garanzia di deduplica a livello store
			exists, err := indexExists(tx, "transactions", "uniq_transaction_id")
			if err != nil {
				return err
			}
			if !exists {
				if _, err := tx.Exec("CREATE UNIQUE INDEX uniq_transaction_id ON transactions(transaction_id)"); err != nil {
					return err
				}
			}

			// Flag di validazione per i pagamenti M-PESA
			exists, err = columnExists(tx, "mpesa_transactions", "validated")
			if err != nil {
				return err
			}
			if !exists {
				if _, err := tx.Exec("ALTER TABLE mpesa_transactions ADD COLUMN validated BOOLEAN DEFAULT FALSE NOT NULL"); err != nil {
					return err
				}
			}

			// Indice per le query filtrate per numero di telefono
			exists, err = indexExists(tx, "mpesa_transactions", "idx_mpesa_phone")
			if err != nil {
				return err
			}
			if !exists {
				if _, err := tx.Exec("CREATE INDEX idx_mpesa_phone ON mpesa_transactions(phone_number)"); err != nil {
					return err
				}
			}

			return nil
		},
	},
}

// indexExists verifica se un indice esiste già sulla tabella
func indexExists(tx *sql.Tx, table, index string) (bool, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*)
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME = ?
	`, table, index).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// columnExists verifica se una colonna esiste già sulla tabella
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*)
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ApplyMigrations applica tutte le migration necessarie
func (m *MySQLManager) ApplyMigrations() error {
	log.Println("Controllo migration del database...")

	// Crea la tabella delle migration se non esiste
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("errore nella creazione della tabella migrations: %v", err)
	}

	// Ottieni la versione attuale del database
	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("errore nel recupero della versione attuale: %v", err)
	}

	log.Printf("Versione database attuale: %d", currentVersion)

	// Applica tutte le migration necessarie
	applied := 0
	for _, migration := range migrations {
		if migration.Version > currentVersion {
			log.Printf("Applicando migration %d: %s", migration.Version, migration.Description)

			if err := m.applyMigration(migration); err != nil {
				return fmt.Errorf("errore nell'applicazione della migration %d: %v", migration.Version, err)
			}

			applied++
			log.Printf("Migration %d applicata con successo", migration.Version)
		}
	}

	if applied == 0 {
		log.Println("Database aggiornato, nessuna migration necessaria")
	} else {
		log.Printf("Applicate %d migration con successo", applied)
	}

	return nil
}

// createMigrationsTable crea la tabella per tracciare le migration
func (m *MySQLManager) createMigrationsTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_version (version)
		)
	`)
	return err
}

// getCurrentVersion ottiene la versione corrente del database
func (m *MySQLManager) getCurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// applyMigration applica una singola migration
func (m *MySQLManager) applyMigration(migration Migration) error {
	// Inizia una transazione
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() // Rollback automatico se non viene fatto commit

	// Applica le DDL della migration (se presenti)
	if migration.Apply != nil {
		if err := migration.Apply(tx); err != nil {
			return fmt.Errorf("errore nell'esecuzione SQL: %v", err)
		}
	}

	// Registra la migration come applicata
	_, err = tx.Exec(`
		INSERT INTO schema_migrations (version, description, applied_at)
		VALUES (?, ?, ?)
	`, migration.Version, migration.Description, time.Now())

	if err != nil {
		return fmt.Errorf("errore nel registrare la migration: %v", err)
	}

	// Commit della transazione
	return tx.Commit()
}

// GetAppliedMigrations restituisce tutte le migration applicate
func (m *MySQLManager) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query(`
		SELECT version, description
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appliedMigrations []Migration
	for rows.Next() {
		var migration Migration
		if err := rows.Scan(&migration.Version, &migration.Description); err != nil {
			return nil, err
		}
		appliedMigrations = append(appliedMigrations, migration)
	}

	return appliedMigrations, rows.Err()
}
