package mail

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registra i charset estesi
	"github.com/shopspring/decimal"

	"schoolpay-backend/models"
)

// SkipReason indica l'esito del parsing di un messaggio
type SkipReason int

const (
	// Matched: il messaggio contiene una transazione valida
	Matched SkipReason = iota
	// SkipEmptyMessage: contenuto grezzo vuoto o solo spazi
	SkipEmptyMessage
	// SkipNoReadableContent: la normalizzazione non ha prodotto testo
	SkipNoReadableContent
	// SkipNoPatternMatch: il testo non corrisponde al formato della notifica
	SkipNoPatternMatch
)

func (r SkipReason) String() string {
	switch r {
	case Matched:
		return "matched"
	case SkipEmptyMessage:
		return "empty_message"
	case SkipNoReadableContent:
		return "no_readable_content"
	case SkipNoPatternMatch:
		return "no_pattern_match"
	default:
		return "unknown"
	}
}

// ExtractResult è l'esito del parsing: una transazione oppure un motivo di skip
type ExtractResult struct {
	Reason      SkipReason
	Transaction *models.BankTransaction
}

// Pattern della notifica KCB: id, importo KES con separatori delle migliaia,
// nome di 1-3 parole, telefono di 10-12 cifre, nome conto non-greedy,
// numero conto, data DD/MM/YYYY e ora in formato 12 ore
var transactionPattern = regexp.MustCompile(`(?i)([A-Z0-9]+) completed\. You have received KES ([\d,]+) from ((?:[A-Za-z]+)(?:\s[A-Za-z]+)?(?:\s[A-Za-z]+)?) (\d{10,12})\s+for account (.+?) (\d+)\s+on (\d{2}/\d{2}/\d{4}) at (\d{1,2}:\d{2} [APM]{2})`)

var (
	softBreakPattern  = regexp.MustCompile(`=\r?\n`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// ParseMessage trasforma un messaggio grezzo in una transazione strutturata.
// È una funzione pura: nessun accesso al database e nessun log, così il
// ciclo di sync resta l'unico punto con effetti collaterali.
func ParseMessage(raw []byte) ExtractResult {
	if strings.TrimSpace(string(raw)) == "" {
		return ExtractResult{Reason: SkipEmptyMessage}
	}

	plain, html := decodeMessage(raw)

	// Preferisci il testo semplice, altrimenti spoglia l'HTML dai tag
	text := strings.TrimSpace(plain)
	if text == "" {
		text = strings.TrimSpace(htmlTagPattern.ReplaceAllString(html, ""))
	}

	text = normalizeBody(text)
	if text == "" {
		return ExtractResult{Reason: SkipNoReadableContent}
	}

	match := transactionPattern.FindStringSubmatch(text)
	if match == nil {
		return ExtractResult{Reason: SkipNoPatternMatch}
	}

	amount, err := NormalizeAmount(match[2])
	if err != nil {
		return ExtractResult{Reason: SkipNoPatternMatch}
	}

	transactionTime, err := ConvertTo24Hour(match[8])
	if err != nil {
		return ExtractResult{Reason: SkipNoPatternMatch}
	}

	return ExtractResult{
		Reason: Matched,
		Transaction: &models.BankTransaction{
			TransactionID:   match[1],
			Amount:          amount,
			SenderName:      strings.TrimSpace(match[3]),
			PhoneNumber:     match[4],
			AccountName:     strings.TrimSpace(match[5]),
			AccountNumber:   match[6],
			TransactionDate: match[7],
			TransactionTime: transactionTime,
		},
	}
}

// decodeMessage decodifica il messaggio MIME e restituisce il contenuto
// text/plain e text/html. Se il contenuto non è un messaggio MIME valido
// viene trattato come testo semplice.
func decodeMessage(raw []byte) (plain, html string) {
	if !looksLikeMIME(raw) {
		return string(raw), ""
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return string(raw), ""
	}

	var plainBuilder, htmlBuilder strings.Builder
	collectText(entity, &plainBuilder, &htmlBuilder)
	return plainBuilder.String(), htmlBuilder.String()
}

// looksLikeMIME verifica se il contenuto inizia con una riga di header
// ("Nome: valore"). I fetch di fallback restituiscono il solo corpo, che va
// trattato come testo e non come blocco di header.
func looksLikeMIME(raw []byte) bool {
	line := string(raw)
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}

	colon := strings.Index(line, ":")
	if colon <= 0 {
		return false
	}
	return !strings.ContainsAny(line[:colon], " \t")
}

// collectText raccoglie ricorsivamente le parti testuali di un'entità MIME.
// La lettura del body applica già la decodifica del transfer encoding
// (quoted-printable, base64).
func collectText(entity *message.Entity, plain, html *strings.Builder) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return
			}
			collectText(part, plain, html)
		}
		return
	}

	mediaType, _, err := entity.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	switch mediaType {
	case "text/html":
		body, err := io.ReadAll(entity.Body)
		if err == nil {
			html.Write(body)
		}
	case "text/plain", "":
		body, err := io.ReadAll(entity.Body)
		if err == nil {
			plain.Write(body)
		}
	}
}

// normalizeBody rimuove i soft line break del quoted-printable (= a fine
// riga), gli '=' residui e comprime le sequenze di spazi in uno solo
func normalizeBody(text string) string {
	text = softBreakPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "=", "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeAmount elimina i separatori delle migliaia e converte l'importo
func NormalizeAmount(amount string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(amount, ",", "")
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("importo non valido %q: %v", amount, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("importo negativo %q", amount)
	}
	return value, nil
}

// ConvertTo24Hour converte un orario "h:mm AM/PM" nel formato HH:MM:00
func ConvertTo24Hour(time12h string) (string, error) {
	parts := strings.SplitN(time12h, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("orario non valido %q", time12h)
	}

	clock := strings.SplitN(parts[0], ":", 2)
	if len(clock) != 2 {
		return "", fmt.Errorf("orario non valido %q", time12h)
	}

	hours, err := strconv.Atoi(clock[0])
	if err != nil {
		return "", fmt.Errorf("orario non valido %q: %v", time12h, err)
	}
	minutes, err := strconv.Atoi(clock[1])
	if err != nil {
		return "", fmt.Errorf("orario non valido %q: %v", time12h, err)
	}

	modifier := strings.ToUpper(parts[1])
	if modifier == "PM" && hours < 12 {
		hours += 12
	}
	if modifier == "AM" && hours == 12 {
		hours = 0
	}

	return fmt.Sprintf("%02d:%02d:00", hours, minutes), nil
}
