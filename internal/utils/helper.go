package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var ErrInvalidEntryID = errors.New("invalid entry id")

func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]string{"message": message})
}

// ParseEntryID accepts the entry id as sent by either service: a JSON
// number, a quoted number or a query value.
func ParseEntryID(s string) (int64, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidEntryID
	}
	return id, nil
}
