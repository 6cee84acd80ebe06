// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package custodyrpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/hexstody/hexstody-btc/chain"
	"github.com/hexstody/hexstody-btc/ledger"
	"github.com/hexstody/hexstody-btc/quorum"
	"github.com/hexstody/hexstody-btc/withdraw"
)

// maxGenerate bounds the blocks mined by a single /generate call.
const maxGenerate = 1000

type addressResponse struct {
	Address string `json:"address"`
}

type feeResponse struct {
	FeeRate uint64 `json:"fee_rate"`
	Block   *int64 `json:"block"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// requestView is a withdrawal request together with its derived status.
type requestView struct {
	*ledger.WithdrawalRequest
	Status ledger.Status `json:"status"`
}

// newRequest is the body of POST /request.
type newRequest struct {
	User    string         `json:"user"`
	Address string         `json:"address"`
	Amount  btcutil.Amount `json:"amount"`
}

type inviteRequest struct {
	Label string `json:"label"`
}

type inviteResponse struct {
	Invite uuid.UUID `json:"invite"`
	Label  string    `json:"label"`
}

func decodeBody(r *http.Request, w http.ResponseWriter, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func unmarshalBody(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	batch := s.deposits.Drain(r.Context(), s.opts.PollTimeout)
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleDepositAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := s.node.NewAddress()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &addressResponse{addr.EncodeAddress()})
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	est, err := s.node.FeeEstimate()
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := &feeResponse{FeeRate: est.SatPerVByte}
	est.Blocks.WhenSome(func(b int64) {
		resp.Block = &b
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.node.Balance()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &balanceResponse{int64(balance)})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var cw quorum.ConfirmedWithdrawal
	if err := decodeBody(r, w, &cw); err != nil {
		writeError(w, r, err)
		return
	}

	receipt, err := s.withdrawals.AuthorizeAndExecute(r.Context(), &cw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.recordExecution(r, receipt)

	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleWithdrawUnder(w http.ResponseWriter, r *http.Request) {
	var cw quorum.ConfirmedWithdrawal
	if err := decodeBody(r, w, &cw); err != nil {
		writeError(w, r, err)
		return
	}

	receipt, err := s.withdrawals.ExecuteUnderLimit(r.Context(), &cw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// recordExecution marks a paid out request as executed when the ledger
// holds it as confirmed. The payout already happened, so failures are only
// logged.
func (s *Server) recordExecution(r *http.Request, receipt *withdraw.Receipt) {
	snap := s.ledger.Snapshot()
	req, ok := snap.WithdrawalRequests[receipt.ID]
	if !ok || req.Status(snap.Params()) != ledger.StatusConfirmed {
		return
	}

	u := ledger.NewStateUpdate(&ledger.WithdrawalExecuted{
		RequestID: receipt.ID,
		TxID:      receipt.TxID.String(),
		Fee:       receipt.Fee.UnwrapOr(0),
	})
	if err := s.ledger.SubmitWait(r.Context(), u); err != nil {
		log.Errorf("Withdrawal %v paid in %v but not recorded: %v",
			receipt.ID, receipt.TxID, err)
	}
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if _, err := s.guardOperator(w, r); err != nil {
		writeError(w, r, err)
		return
	}

	snap := s.ledger.Snapshot()
	reqs := snap.Requests()
	views := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, requestView{
			WithdrawalRequest: req,
			Status:            req.Status(snap.Params()),
		})
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	op, err := s.guardOperator(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var nr newRequest
	if err := unmarshalBody(op.body, &nr); err != nil {
		writeError(w, r, err)
		return
	}

	info := &ledger.WithdrawalRequestInfo{
		ID:      uuid.New(),
		User:    nr.User,
		Address: nr.Address,
		Amount:  nr.Amount,
	}
	err = s.ledger.SubmitWait(r.Context(), ledger.NewStateUpdate(info))
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Infof("Operator %v created withdrawal request %v", op.key,
		info.ID)

	snap := s.ledger.Snapshot()
	req := snap.WithdrawalRequests[info.ID]
	writeJSON(w, http.StatusCreated, &requestView{
		WithdrawalRequest: req,
		Status:            req.Status(snap.Params()),
	})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	op, err := s.guardOperator(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var data quorum.ConfirmationData
	if err := unmarshalBody(op.body, &data); err != nil {
		writeError(w, r, err)
		return
	}

	action := quorum.ActionConfirm
	if r.URL.Path == quorum.RejectURI {
		action = quorum.ActionReject
	}
	url := quorum.BindingURL(s.opts.Domain, action)

	decision, err := ledger.NewWithdrawalRequestDecision(
		data, op.sig, action, url,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = s.ledger.SubmitWait(r.Context(), ledger.NewStateUpdate(decision))
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Infof("Operator %v: %v withdrawal request %v", op.key, action,
		data.ID)

	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleGenInvite(w http.ResponseWriter, r *http.Request) {
	op, err := s.guardOperator(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req inviteRequest
	if err := unmarshalBody(op.body, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rec := ledger.NewInvite(s.ledger.Snapshot(), op.key.String(), req.Label)
	err = s.ledger.SubmitWait(r.Context(), ledger.NewStateUpdate(rec))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &inviteResponse{rec.Invite, rec.Label})
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	op, err := s.guardOperator(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	invites := s.ledger.Snapshot().InvitesBy(op.key.String())
	resp := make([]inviteResponse, 0, len(invites))
	for _, inv := range invites {
		resp = append(resp, inviteResponse{inv.Invite, inv.Label})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	blocks := int64(1)
	if v := r.URL.Query().Get("blocks"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 || n > maxGenerate {
			writeError(w, r, fmt.Errorf("%w: blocks %q", errBadRequest,
				v))
			return
		}
		blocks = n
	}

	if err := s.requireRegtest(); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := s.node.NewAddress()
	if err != nil {
		writeError(w, r, err)
		return
	}
	hashes, err := s.node.Generate(blocks, addr)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]string, 0, len(hashes))
	for _, h := range hashes {
		resp = append(resp, h.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNewAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.requireRegtest(); err != nil {
		writeError(w, r, err)
		return
	}

	addr, err := s.node.NewAddress()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr.EncodeAddress())
}

func (s *Server) requireRegtest() error {
	ok, err := s.node.IsRegtest()
	if err != nil {
		return err
	}
	if !ok {
		return chain.ErrNotRegtest
	}
	return nil
}
