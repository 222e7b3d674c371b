package utils

import (
	"encoding/json"
	"fmt"
	"os"
)

// Configurazione del database
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
}

// Configurazione del server
type ServerConfig struct {
	Port int `json:"port"`
}

// Configurazione della casella IMAP con le notifiche bancarie
type MailConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Sender       string `json:"sender"` // Indirizzo mittente della banca
	Folder       string `json:"folder"`
	AuthTimeout  int    `json:"authTimeoutSecs"`
	PollInterval int    `json:"pollIntervalSecs"`
	SyncTimeout  int    `json:"syncTimeoutSecs"` // Deadline complessiva per un ciclo di sync
}

// Configurazione SMTP per l'invio delle ricevute
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// Configurazione del gateway di pagamento Pesapal
type PesapalConfig struct {
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`
	AuthURL        string `json:"authUrl"`
	OrderURL       string `json:"orderUrl"`
	CallbackURL    string `json:"callbackUrl"`
	NotificationID string `json:"notificationId"`
}

// Credenziali di login del pannello amministrativo
type AuthConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Configurazione completa
type Config struct {
	Database  DatabaseConfig `json:"database"`
	Server    ServerConfig   `json:"server"`
	Mail      MailConfig     `json:"mail"`
	SMTP      SMTPConfig     `json:"smtp"`
	Pesapal   PesapalConfig  `json:"pesapal"`
	Auth      AuthConfig     `json:"auth"`
	UploadDir string         `json:"uploadDir"`
}

// Carica la configurazione dal file
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("errore nell'apertura del file di configurazione: %v", err)
	}
	defer file.Close()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("errore nella decodifica del file di configurazione: %v", err)
	}

	config.applyDefaults()
	return &config, nil
}

// DefaultConfig restituisce una configurazione con i valori predefiniti
func DefaultConfig() *Config {
	config := &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "password",
			DBName:   "schoolpay",
		},
	}
	config.applyDefaults()
	return config
}

// Completa i campi non valorizzati con i valori predefiniti
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Mail.Host == "" {
		c.Mail.Host = "imap.gmail.com"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 993
	}
	if c.Mail.Sender == "" {
		c.Mail.Sender = "mts@kcb.co.ke"
	}
	if c.Mail.Folder == "" {
		c.Mail.Folder = "INBOX"
	}
	if c.Mail.AuthTimeout == 0 {
		c.Mail.AuthTimeout = 10
	}
	if c.Mail.PollInterval == 0 {
		c.Mail.PollInterval = 300
	}
	if c.Mail.SyncTimeout == 0 {
		c.Mail.SyncTimeout = 120
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Pesapal.AuthURL == "" {
		c.Pesapal.AuthURL = "https://pay.pesapal.com/v3/api/Auth/RequestToken"
	}
	if c.Pesapal.OrderURL == "" {
		c.Pesapal.OrderURL = "https://pay.pesapal.com/v3/api/Transactions/SubmitOrderRequest"
	}
	if c.Auth.Username == "" {
		c.Auth.Username = "admin"
	}
	if c.Auth.Password == "" {
		c.Auth.Password = "Newlife@2024"
	}
	if c.Auth.Token == "" {
		c.Auth.Token = "newlife-admin-token"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
}

// Ottieni la stringa di connessione al database
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}
