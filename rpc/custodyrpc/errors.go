// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodyrpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/ledger"
	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/hexstody/hexstody-btc/withdraw"
)

var (
	// errBadRequest is wrapped around malformed request bodies and
	// parameters.
	errBadRequest = errors.New("bad request")

	// errNoSignature is returned when an operator route is called without
	// a Signature-Data header.
	errNoSignature = errors.New("missing Signature-Data header")
)

// errorMessage is the body of every error response.
type errorMessage struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// errorStatus maps an error returned by the engines to an HTTP status.
func errorStatus(err error) int {
	var (
		quorumErr *withdraw.QuorumError
		execErr   *withdraw.ExecutionError
		transErr  *ledger.TransitionError
		persisErr *ledger.PersistError
	)

	switch {
	case errors.As(err, &quorumErr):
		return http.StatusForbidden

	case errors.As(err, &execErr):
		return http.StatusInternalServerError

	case errors.Is(err, errBadRequest),
		errors.Is(err, withdraw.ErrOverLimit),
		errors.Is(err, withdraw.ErrInvalidAddress),
		errors.Is(err, withdraw.ErrDustAmount):
		return http.StatusBadRequest

	case errors.Is(err, errNoSignature),
		errors.Is(err, quorum.ErrMalformedSignatureData):
		return http.StatusUnauthorized

	case errors.Is(err, quorum.ErrUnknownOperator),
		errors.Is(err, quorum.ErrInvalidSignature),
		errors.Is(err, chain.ErrNotRegtest):
		return http.StatusForbidden

	case errors.Is(err, ledger.ErrUnknownRequest):
		return http.StatusNotFound

	case errors.As(err, &transErr):
		return http.StatusConflict

	case errors.As(err, &persisErr):
		return http.StatusInternalServerError

	case errors.Is(err, ledger.ErrEngineStopped):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// writeError sends err as a JSON error message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		log.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}

	writeJSON(w, code, &errorMessage{Message: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("Unable to write response: %v", err)
	}
}
