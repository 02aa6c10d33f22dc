package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

const maxJSONBody = 64 << 10 // 64KB

// readJSON decodifica el body JSON con límite de tamaño. Devuelve false
// (y ya respondió) si el body no es JSON válido del tipo esperado.
func readJSON(w http.ResponseWriter, r *http.Request, dst any, onError func(w http.ResponseWriter, msg string)) bool {
	ct := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.Contains(ct, "application/json") {
		onError(w, "content-type debe ser application/json")
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		onError(w, "json inválido")
		return false
	}
	return true
}
