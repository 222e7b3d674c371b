package models

// WSMessage rappresenta un messaggio WebSocket inviato ai client
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
