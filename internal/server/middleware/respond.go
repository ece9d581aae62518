// Package middleware holds the HTTP middleware of the read-only status API.
package middleware

import (
	"encoding/json"
	"net/http"
)

func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
