package pesapal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"schoolpay-backend/models"
	"schoolpay-backend/utils"
)

// Client è il client per le API Pesapal v3
type Client struct {
	config     utils.PesapalConfig
	httpClient *http.Client
}

// NewClient crea un nuovo client Pesapal
func NewClient(config utils.PesapalConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Struttura per la richiesta del token
type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

// Struttura per la risposta del token
type tokenResponse struct {
	Token string `json:"token"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BillingAddress sono i dati di fatturazione dell'ordine
type BillingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// OrderRequest è la richiesta di creazione ordine
type OrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress BillingAddress `json:"billing_address"`
}

// RequestToken ottiene un bearer token dalle credenziali del merchant
func (c *Client) RequestToken() (string, error) {
	payload := tokenRequest{
		ConsumerKey:    c.config.ConsumerKey,
		ConsumerSecret: c.config.ConsumerSecret,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("errore nella serializzazione JSON: %v", err)
	}

	req, err := http.NewRequest("POST", c.config.AuthURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("errore nella creazione della richiesta HTTP: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("errore nell'invio della richiesta HTTP: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("risposta inattesa dal gateway (%d): %s", resp.StatusCode, body)
	}

	var response tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("errore nella decodifica della risposta: %v", err)
	}

	if response.Token == "" {
		if response.Error != nil {
			return "", fmt.Errorf("errore dal gateway: %s", response.Error.Message)
		}
		return "", fmt.Errorf("nessun token nella risposta del gateway")
	}

	return response.Token, nil
}

// SubmitOrder invia un ordine di pagamento e restituisce la risposta del
// gateway così com'è (contiene il link di pagamento per il frontend)
func (c *Client) SubmitOrder(token string, payment models.PaymentRequest) (map[string]interface{}, error) {
	order := OrderRequest{
		ID:             payment.OrderID,
		Currency:       "KES",
		Amount:         payment.Amount,
		Description:    payment.Description,
		CallbackURL:    c.config.CallbackURL,
		NotificationID: c.config.NotificationID,
		BillingAddress: BillingAddress{
			EmailAddress: payment.Email,
			PhoneNumber:  payment.Phone,
			FirstName:    payment.FirstName,
			LastName:     payment.LastName,
		},
	}

	jsonData, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("errore nella serializzazione JSON: %v", err)
	}

	req, err := http.NewRequest("POST", c.config.OrderURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("errore nella creazione della richiesta HTTP: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("errore nell'invio della richiesta HTTP: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("risposta inattesa dal gateway (%d): %s", resp.StatusCode, body)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("errore nella decodifica della risposta: %v", err)
	}

	return response, nil
}
