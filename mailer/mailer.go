package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"schoolpay-backend/models"
	"schoolpay-backend/utils"
)

// Mailer invia le ricevute di pagamento via SMTP
type Mailer struct {
	config utils.SMTPConfig
	dialer *gomail.Dialer
}

// New crea un nuovo Mailer a partire dalla configurazione SMTP
func New(config utils.SMTPConfig) *Mailer {
	return &Mailer{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.User, config.Password),
	}
}

// SendReceipt invia la ricevuta HTML per una transazione
func (m *Mailer) SendReceipt(tx *models.BankTransaction) error {
	body, err := renderReceipt(tx)
	if err != nil {
		return fmt.Errorf("errore nella generazione della ricevuta: %v", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", m.config.To)
	msg.SetHeader("Subject", "Payment Confirmation")
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("errore nell'invio della ricevuta: %v", err)
	}
	return nil
}

// renderReceipt genera il corpo HTML della ricevuta
func renderReceipt(tx *models.BankTransaction) (string, error) {
	data := struct {
		Tx        *models.BankTransaction
		PrintedAt string
	}{
		Tx:        tx,
		PrintedAt: time.Now().Format("02/01/2006 15:04:05"),
	}

	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`
<html>
  <head>
    <style>
      body {
        font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
        background-color: #f8f9fa;
        margin: 0;
        padding: 20px;
      }
      .email-container {
        background-color: #ffffff;
        padding: 30px;
        border-radius: 8px;
        max-width: 650px;
        margin: auto;
        box-shadow: 0 4px 12px rgba(0,0,0,0.1);
        border: 1px solid #e0e0e0;
      }
      .header {
        text-align: center;
        margin-bottom: 30px;
      }
      .header h1 {
        color: #004085;
        margin: 0;
        font-size: 24px;
      }
      .info-table {
        width: 100%;
        border-collapse: collapse;
        margin-bottom: 20px;
      }
      .info-table td {
        padding: 10px 5px;
        border-bottom: 1px solid #ddd;
        font-size: 16px;
      }
      .info-table td.label {
        font-weight: bold;
        color: #333;
        width: 40%;
      }
      .footer {
        margin-top: 30px;
        text-align: center;
        font-size: 14px;
        color: #666;
      }
    </style>
  </head>
  <body>
    <div class="email-container">
      <div class="header">
        <h1>Payment Confirmation</h1>
      </div>

      <p>Dear {{.Tx.SenderName}},</p>

      <p>We acknowledge the receipt of your payment. Below are your transaction details:</p>

      <table class="info-table">
        <tr>
          <td class="label">Paid By:</td>
          <td>{{.Tx.SenderName}}</td>
        </tr>
        <tr>
          <td class="label">Phone Number:</td>
          <td>{{.Tx.PhoneNumber}}</td>
        </tr>
        <tr>
          <td class="label">Account Reference:</td>
          <td>{{.Tx.AccountName}}</td>
        </tr>
        <tr>
          <td class="label">Transaction Date:</td>
          <td>{{.Tx.TransactionDate}} {{.Tx.TransactionTime}}</td>
        </tr>
        <tr>
          <td class="label">Amount Paid:</td>
          <td>KES {{.Tx.Amount}}</td>
        </tr>
        <tr>
          <td class="label">Transaction ID:</td>
          <td>{{.Tx.TransactionID}}</td>
        </tr>
        <tr>
          <td class="label">Printed At:</td>
          <td>{{.PrintedAt}}</td>
        </tr>
      </table>

      <div class="footer">
        <p>Thank you for choosing Newlife Preparatory. For any inquiries, please contact the school clerk.</p>
      </div>
    </div>
  </body>
</html>
`))
