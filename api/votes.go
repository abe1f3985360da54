package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/commit-reveal-sequencer/voting"
)

// commit accepts the commitment of a voter and returns the receipt, which
// includes the salt required to reveal the vote later
// POST /votes
func (a *API) commit(w http.ResponseWriter, r *http.Request) {
	req := &voting.CommitRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	receipt, err := a.engine.Commit(r.Context(), req)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, receipt)
}

// reveal opens a committed vote
// POST /votes/reveal
func (a *API) reveal(w http.ResponseWriter, r *http.Request) {
	req := &voting.RevealRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	rv, err := a.engine.Reveal(r.Context(), req)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	resp := &RevealResponse{
		ElectionID: rv.ElectionID,
		VoterID:    rv.VoterID,
		Choice:     rv.Choice,
		Timestamp:  rv.Timestamp,
	}
	if rv.Tx != nil {
		resp.TransactionHash = rv.Tx.Hash
		resp.BlockNumber = rv.Tx.BlockNumber
	}
	httpWriteJSON(w, resp)
}

// checkReveal reports whether an opening matches the stored commitment
// without storing anything
// POST /votes/reveal/check
func (a *API) checkReveal(w http.ResponseWriter, r *http.Request) {
	req := &voting.RevealRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	valid, err := a.engine.CheckReveal(r.Context(), req)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, &CheckRevealResponse{Valid: valid})
}

// verifyVote checks a transaction reference against the ledger and the local
// records
// GET /votes/verify/{txHash}
func (a *API) verifyVote(w http.ResponseWriter, r *http.Request) {
	hash, err := parseTxHash(chi.URLParam(r, TxHashURLParam))
	if err != nil {
		ErrMalformedTxHash.WithErr(err).Write(w)
		return
	}
	res, err := a.verifier.Verify(r.Context(), hash)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}
