package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/registry"
	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// bulkRegister registers a list of voters, reporting the outcome per entry
// POST /voters/bulk
func (a *API) bulkRegister(w http.ResponseWriter, r *http.Request) {
	req := &BulkRegisterRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	a.register(w, r, req.ElectionID, req.Voters)
}

// csvRegister registers the voters listed in a CSV body with the columns
// voterId,walletAddress
// POST /voters/csv?electionId=<id>
func (a *API) csvRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := parseElectionID(w, r.URL.Query().Get(ElectionURLParam))
	if !ok {
		return
	}
	entries, err := registry.ParseCSV(r.Body)
	if err != nil {
		ErrMalformedCSV.WithErr(err).Write(w)
		return
	}
	a.register(w, r, id, entries)
}

func (a *API) register(w http.ResponseWriter, r *http.Request, id uuid.UUID, entries []types.VoterEntry) {
	if len(entries) == 0 {
		ErrInvalidVoter.With("no voters provided").Write(w)
		return
	}
	results, err := a.registry.BulkRegister(r.Context(), id, entries)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	resp := &BulkRegisterResponse{ElectionID: id, Results: results}
	for _, res := range results {
		if res.Success {
			resp.Registered++
		} else {
			resp.Failed++
		}
	}
	httpWriteJSON(w, resp)
}

// voters lists the voters of an election
// GET /voters/{electionId}
func (a *API) voters(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	list, err := a.registry.Voters(id)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	if list == nil {
		list = []*types.VoterRecord{}
	}
	httpWriteJSON(w, &VotersResponse{ElectionID: id, Voters: list})
}

// checkEligibility reports whether a wallet is registered and eligible
// GET /voters/check/{electionId}/{wallet}
func (a *API) checkEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	wallet, err := registry.ParseWallet(chi.URLParam(r, WalletURLParam))
	if err != nil {
		ErrMalformedAddress.WithErr(err).Write(w)
		return
	}
	if _, err := a.machine.Election(id); err != nil {
		apiError(err).Write(w)
		return
	}
	resp := &EligibilityResponse{ElectionID: id, WalletAddress: wallet}
	v, err := a.registry.VoterByWallet(id, wallet)
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	default:
		resp.Eligible = v.Eligible
		resp.VoterID = v.VoterID
		resp.Committed = v.Committed
		resp.Revealed = v.Revealed
	}
	httpWriteJSON(w, resp)
}
