package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"stakefarm/native/bank"
	"stakefarm/native/farm"
)

const requestLimit = 1 << 20

var errCallerRequired = errors.New("caller identity required")

func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	payload, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeLedgerError maps ledger sentinels onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	writeJSONError(w, ledgerStatus(err), err)
}

func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, errCallerRequired):
		return http.StatusUnauthorized
	case errors.Is(err, farm.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, farm.ErrUnknownPool), errors.Is(err, farm.ErrUnknownDeposit):
		return http.StatusNotFound
	case errors.Is(err, farm.ErrInvalidParameter), errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrTokenRequired):
		return http.StatusBadRequest
	case errors.Is(err, farm.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, farm.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, farm.ErrInsufficientBalance), errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
