package models

import (
	"time"
)

// Upload rappresenta un file caricato tramite l'endpoint /upload
type Upload struct {
	ID         int64     `json:"id"`
	Token      string    `json:"token"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}
