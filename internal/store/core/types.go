package core

import "time"

// KeyRecord es el registro durable de la clave de firma del gateway.
// Se persiste SOLO la mitad pública junto al kid; la privada viaja
// fuera de banda (custody "split") o cifrada con secretbox (custody
// "colocated").
type KeyRecord struct {
	KID       string    `json:"kid"`
	Alg       string    `json:"alg"` // "RS256"
	PublicJWK []byte    `json:"public"`
	// EncPrivateJWK va vacío en custody split. En colocated contiene el
	// JWK privado cifrado (base64(nonce)|base64(ct), ver security/secretbox).
	EncPrivateJWK string    `json:"private,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TrainingStatus son los estados que reporta el store de capacitación.
type TrainingStatus string

const (
	TrainingNotStarted TrainingStatus = "not started"
	TrainingStarted    TrainingStatus = "started"
	TrainingCompleted  TrainingStatus = "completed"
)
