package mail

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"schoolpay-backend/utils"
)

// Sezioni richieste per ogni messaggio. Peek evita che il fetch marchi i
// messaggi come letti, così i run successivi rivedono gli stessi messaggi.
var (
	sectionFull   = &imap.BodySectionName{Peek: true}
	sectionHeader = &imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier}, Peek: true}
	sectionText   = &imap.BodySectionName{BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier}, Peek: true}
)

// RawMessage contiene le parti grezze di un messaggio scaricato
type RawMessage struct {
	SeqNum uint32
	Header []byte
	Body   []byte
	Full   []byte
}

// Content restituisce la rappresentazione da parsare: il messaggio completo
// se disponibile, altrimenti il solo corpo
func (r RawMessage) Content() []byte {
	if len(r.Full) > 0 {
		return r.Full
	}
	return r.Body
}

// Mailbox è la casella di posta vista dal servizio di sync
type Mailbox interface {
	SearchFrom(sender string) ([]uint32, error)
	FetchRaw(seqNums []uint32) ([]RawMessage, error)
	Close() error
}

// DialFunc apre una connessione alla casella di posta
type DialFunc func(cfg utils.MailConfig) (Mailbox, error)

type imapMailbox struct {
	client *client.Client
}

// Dial si connette alla casella IMAP via TLS, si autentica e apre la
// cartella in sola lettura. Ogni errore qui è fatale per il run corrente.
func Dial(cfg utils.MailConfig) (Mailbox, error) {
	authTimeout := time.Duration(cfg.AuthTimeout) * time.Second
	dialer := &net.Dialer{Timeout: authTimeout}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	c, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("errore nella connessione a %s: %v", addr, err)
	}
	c.Timeout = authTimeout

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("errore nell'autenticazione IMAP: %v", err)
	}

	// Apertura in sola lettura: i flag dei messaggi non vengono toccati
	if _, err := c.Select(cfg.Folder, true); err != nil {
		c.Logout()
		return nil, fmt.Errorf("errore nell'apertura della cartella %s: %v", cfg.Folder, err)
	}

	return &imapMailbox{client: c}, nil
}

// SearchFrom cerca tutti i messaggi con il mittente indicato
func (m *imapMailbox) SearchFrom(sender string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("From", sender)

	seqNums, err := m.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("errore nella ricerca dei messaggi: %v", err)
	}
	return seqNums, nil
}

// FetchRaw scarica header, corpo e rappresentazione completa dei messaggi
func (m *imapMailbox) FetchRaw(seqNums []uint32) ([]RawMessage, error) {
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	items := []imap.FetchItem{
		sectionFull.FetchItem(),
		sectionHeader.FetchItem(),
		sectionText.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.client.Fetch(seqSet, items, messages)
	}()

	var result []RawMessage
	for msg := range messages {
		raw := RawMessage{SeqNum: msg.SeqNum}
		if literal := msg.GetBody(sectionFull); literal != nil {
			raw.Full, _ = io.ReadAll(literal)
		}
		if literal := msg.GetBody(sectionHeader); literal != nil {
			raw.Header, _ = io.ReadAll(literal)
		}
		if literal := msg.GetBody(sectionText); literal != nil {
			raw.Body, _ = io.ReadAll(literal)
		}
		result = append(result, raw)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("errore nel fetch dei messaggi: %v", err)
	}
	return result, nil
}

// Close chiude la connessione alla casella
func (m *imapMailbox) Close() error {
	return m.client.Logout()
}
