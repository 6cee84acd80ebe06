// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodyrpc

import (
	"fmt"
	"io"
	"net/http"

	"github.com/hexstody/hexstody-btc/quorum"
)

// SignatureHeader carries the operator signature of a request in the form
// b64(sig):nonce:b64(pubkey).
const SignatureHeader = "Signature-Data"

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// GuardMessage returns the message an operator signs to call path with
// body. Requests without a body sign the bound path only.
func GuardMessage(domain, path string, body []byte) string {
	if len(body) == 0 {
		return domain + path
	}
	return domain + path + ":" + string(body)
}

// operatorRequest is an authenticated operator call.
type operatorRequest struct {
	sig  quorum.SignatureData
	key  *quorum.PublicKey
	body []byte
}

// guardOperator reads the body of r and checks its Signature-Data header
// against the operator keys.
func (s *Server) guardOperator(w http.ResponseWriter,
	r *http.Request) (*operatorRequest, error) {

	header := r.Header.Get(SignatureHeader)
	if header == "" {
		return nil, errNoSignature
	}
	sig, err := quorum.ParseSignatureData(header)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	msg := GuardMessage(s.opts.Domain, r.URL.Path, body)
	key, err := quorum.Verify(s.opts.Keys, sig, msg)
	if err != nil {
		log.Warnf("Rejected operator call %s %s: %v", r.Method,
			r.URL.Path, err)
		return nil, err
	}

	return &operatorRequest{sig: sig, key: key, body: body}, nil
}
