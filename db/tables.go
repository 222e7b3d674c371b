package db

import (
	"fmt"
	"sort"
	"strings"
)

// Tabelle esposte dalle API CRUD generiche. I nomi delle tabelle arrivano
// dall'URL e non possono essere bindati come parametri, quindi vengono
// accettati solo se presenti in questa allow-list.
var allowedTables = map[string]bool{
	"transactions":       true,
	"mpesa_transactions": true,
	"uploads":            true,
}

// ErrTableNotAllowed indica una tabella fuori dalla allow-list
var ErrTableNotAllowed = fmt.Errorf("tabella non consentita")

// checkTable verifica che la tabella sia nella allow-list
func checkTable(name string) error {
	if !allowedTables[name] {
		return ErrTableNotAllowed
	}
	return nil
}

// ListTables restituisce i nomi delle tabelle esposte dalle API generiche
func (m *MySQLManager) ListTables() []string {
	tables := make([]string, 0, len(allowedTables))
	for name := range allowedTables {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// tableColumns carica l'insieme delle colonne di una tabella. Serve per
// filtrare le chiavi del body JSON prima di interpolarle nelle query.
func (m *MySQLManager) tableColumns(table string) (map[string]bool, error) {
	rows, err := m.db.Query(`
		SELECT COLUMN_NAME
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns[name] = true
	}

	return columns, rows.Err()
}

// filterColumns tiene solo le chiavi che corrispondono a colonne reali,
// in ordine deterministico. La colonna id non è mai scrivibile.
func filterColumns(values map[string]interface{}, columns map[string]bool) ([]string, []interface{}) {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key != "id" && columns[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	params := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		params = append(params, values[key])
	}
	return keys, params
}

// GetTableRows restituisce le prime 10 righe di una tabella ordinate per id
func (m *MySQLManager) GetTableRows(table string) ([]map[string]interface{}, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	rows, err := m.db.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY id ASC LIMIT 10", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			// Il driver restituisce []byte per le colonne testuali
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
			} else {
				row[column] = values[i]
			}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

// InsertTableRow inserisce una riga costruita dal body JSON
func (m *MySQLManager) InsertTableRow(table string, values map[string]interface{}) error {
	if err := checkTable(table); err != nil {
		return err
	}

	columns, err := m.tableColumns(table)
	if err != nil {
		return err
	}

	keys, params := filterColumns(values, columns)
	if len(keys) == 0 {
		return fmt.Errorf("nessuna colonna valida nel body della richiesta")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(keys, ", "), placeholders,
	)

	_, err = m.db.Exec(query, params...)
	return err
}

// UpdateTableRow aggiorna una riga per id
func (m *MySQLManager) UpdateTableRow(table, id string, values map[string]interface{}) error {
	if err := checkTable(table); err != nil {
		return err
	}

	columns, err := m.tableColumns(table)
	if err != nil {
		return err
	}

	keys, params := filterColumns(values, columns)
	if len(keys) == 0 {
		return fmt.Errorf("nessuna colonna valida nel body della richiesta")
	}

	assignments := make([]string, len(keys))
	for i, key := range keys {
		assignments[i] = key + " = ?"
	}
	params = append(params, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(assignments, ", "))
	_, err = m.db.Exec(query, params...)
	return err
}

// DeleteTableRow elimina una riga per id
func (m *MySQLManager) DeleteTableRow(table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	_, err := m.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	return err
}
