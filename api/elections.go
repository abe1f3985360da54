package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vocdoni/commit-reveal-sequencer/tally"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"go.vocdoni.io/dvote/log"
)

// newElection creates a new election in the Created phase
// POST /elections
func (a *API) newElection(w http.ResponseWriter, r *http.Request) {
	setup := &types.ElectionSetup{}
	if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	e, err := a.machine.Create(r.Context(), setup)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}

// elections lists every election
// GET /elections
func (a *API) elections(w http.ResponseWriter, r *http.Request) {
	list, err := a.machine.List()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not list elections: %v", err).Write(w)
		return
	}
	if list == nil {
		list = []*types.Election{}
	}
	httpWriteJSON(w, &ElectionsResponse{Elections: list})
}

// election returns a single election
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	e, err := a.machine.Election(id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ErrElectionNotFound.With(id.String()).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}

// setCandidates replaces the candidates of a Created election
// PUT /elections/{electionId}/candidates
func (a *API) setCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	req := &CandidatesRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	e, err := a.machine.SetCandidates(r.Context(), id, req.Candidates)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}

// openElection moves the election from Created to Open
// PUT /elections/{electionId}/open
func (a *API) openElection(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	e, err := a.machine.Open(r.Context(), id)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}

// closeElection moves the election from Open to Closed
// PUT /elections/{electionId}/close
func (a *API) closeElection(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	e, err := a.machine.Close(r.Context(), id)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}

// tallyElection computes and stores the tally of a Closed election
// PUT /elections/{electionId}/tally
func (a *API) tallyElection(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	t, err := a.machine.Tally(r.Context(), id)
	if err != nil {
		apiError(err).Write(w)
		return
	}
	log.Infow("election tallied via API", "electionID", id.String(), "revealed", t.TotalRevealed)
	httpWriteJSON(w, t)
}

// electionTally returns the stored tally
// GET /elections/{electionId}/tally
func (a *API) electionTally(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	t, err := a.machine.TallyResult(id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			ErrTallyNotAvailable.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if q := r.URL.Query().Get(RecountQueryParam); q != "" {
		recount, err := strconv.ParseBool(q)
		if err != nil {
			ErrMalformedParam.Withf("%s: %v", RecountQueryParam, err).Write(w)
			return
		}
		if recount {
			a.recountTally(w, t)
			return
		}
	}
	httpWriteJSON(w, t)
}

func (a *API) recountTally(w http.ResponseWriter, stored *types.Tally) {
	recomputed, err := tally.Recount(a.storage, stored.ElectionID)
	switch {
	case errors.Is(err, tally.ErrMismatch):
		log.Warnw("recounted tally does not match the stored one", "electionID", stored.ElectionID.String())
	case err != nil:
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &RecountResponse{
		Stored:     stored,
		Recomputed: recomputed,
		Matches:    err == nil,
	})
}

// electionAudit returns the audit records of an election
// GET /elections/{electionId}/audit
func (a *API) electionAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(w, r)
	if !ok {
		return
	}
	if _, err := a.machine.Election(id); err != nil {
		apiError(err).Write(w)
		return
	}
	records, err := a.storage.AuditRecords(id)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if records == nil {
		records = []*types.AuditRecord{}
	}
	httpWriteJSON(w, &AuditResponse{ElectionID: id, Records: records})
}
