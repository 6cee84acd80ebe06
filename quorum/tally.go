// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package quorum

// Tally counts the distinct operators in keys that produced a valid signature
// over message. Unknown keys, bad signatures and repeated signatures by the
// same operator add nothing.
func Tally(keys *KeySet, message string, sigs []SignatureData) int {
	seen := make(map[string]struct{}, len(sigs))
	for _, sig := range sigs {
		key, err := Verify(keys, sig, message)
		if err != nil {
			continue
		}

		id := string(key.raw)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
	}

	return len(seen)
}

// Authorized reports whether confirms outweigh rejects by at least required.
func Authorized(confirms, rejects, required int) bool {
	return confirms > rejects && confirms-rejects >= required
}

// Decision is the result of tallying a withdrawal against the operator set.
type Decision struct {
	Confirmations int
	Rejections    int
	Required      int
}

// Authorized reports whether the decision reaches the quorum.
func (d Decision) Authorized() bool {
	return Authorized(d.Confirmations, d.Rejections, d.Required)
}

// Rejected reports whether rejections outweigh confirmations by at least the
// required margin.
func (d Decision) Rejected() bool {
	return Authorized(d.Rejections, d.Confirmations, d.Required)
}

// Decide tallies the decisions carried by w. Confirmations are checked
// against the confirm binding message and rejections against the reject
// binding message for domain, so a signature can never count for the other
// action or for another request.
func Decide(keys *KeySet, required int, domain string,
	w *ConfirmedWithdrawal) Decision {

	data := w.Data()
	return Decision{
		Confirmations: Tally(
			keys, BindingMessage(domain, ActionConfirm, data),
			w.Confirmations,
		),
		Rejections: Tally(
			keys, BindingMessage(domain, ActionReject, data),
			w.Rejections,
		),
		Required: required,
	}
}
