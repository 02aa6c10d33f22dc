package http

import (
	"encoding/json"
	"net/http"
)

// denyBody es el cuerpo de error fail-closed del gateway. El formato es
// contrato con el plano de control: success siempre false, error textual,
// stack solo con debug habilitado.
type denyBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Stack   string `json:"stack,omitempty"`
}

// WriteDeny responde 403 con el cuerpo de denegación. Nunca se firma:
// un error de verificación/firma jamás produce un success:true.
func WriteDeny(w http.ResponseWriter, errMsg, stack string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(denyBody{
		Success: false,
		Error:   errMsg,
		Stack:   stack,
	})
}

// WriteJSON: respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
