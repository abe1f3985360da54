//nolint:lll
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/commit-reveal-sequencer/types"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 403, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 40005 and 40007 exist, 40006 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedElectionID  = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed election ID")}
	ErrElectionNotFound     = Error{Code: 40009, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrInvalidElection      = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid election")}
	ErrInvalidTransition    = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("invalid election status transition")}
	ErrElectionNotOpen      = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("election is not open")}
	ErrElectionNotClosed    = Error{Code: 40013, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("election is not closed")}
	ErrNotEligible          = Error{Code: 40014, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("voter is not eligible")}
	ErrDuplicateWallet      = Error{Code: 40015, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("wallet already bound to another voter")}
	ErrAlreadyCommitted     = Error{Code: 40016, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voter already committed")}
	ErrAlreadyRevealed      = Error{Code: 40017, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voter already revealed")}
	ErrInvalidReveal        = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("reveal does not match the commitment")}
	ErrUnknownCandidate     = Error{Code: 40019, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown candidate")}
	ErrInvalidSalt          = Error{Code: 40020, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid salt")}
	ErrRegistrationClosed   = Error{Code: 40021, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("registration is closed")}
	ErrInvalidVoter         = Error{Code: 40022, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid voter entry")}
	ErrMalformedAddress     = Error{Code: 40023, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed wallet address")}
	ErrMalformedTxHash      = Error{Code: 40024, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed transaction hash")}
	ErrPendingSubmissions   = Error{Code: 40025, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("ledger submissions still in flight, retry later")}
	ErrMalformedCSV         = Error{Code: 40026, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed CSV body")}
	ErrTallyNotAvailable    = Error{Code: 40027, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("tally not available")}
	ErrMalformedParam       = Error{Code: 40028, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrLedgerSubmissionFailed     = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger submission failed, retry later")}
	ErrLedgerUnavailable          = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("ledger unavailable")}
)

// errorKinds maps the domain error kinds to their API error. The ledger kinds
// go first since they wrap the underlying cause.
var errorKinds = []struct {
	kind error
	api  Error
}{
	{types.ErrLedgerSubmissionFailed, ErrLedgerSubmissionFailed},
	{types.ErrLedgerUnavailable, ErrLedgerUnavailable},
	{types.ErrInvalidElection, ErrInvalidElection},
	{types.ErrInvalidTransition, ErrInvalidTransition},
	{types.ErrElectionNotOpen, ErrElectionNotOpen},
	{types.ErrElectionNotClosed, ErrElectionNotClosed},
	{types.ErrNotEligible, ErrNotEligible},
	{types.ErrDuplicateWallet, ErrDuplicateWallet},
	{types.ErrAlreadyCommitted, ErrAlreadyCommitted},
	{types.ErrAlreadyRevealed, ErrAlreadyRevealed},
	{types.ErrInvalidReveal, ErrInvalidReveal},
	{types.ErrUnknownCandidate, ErrUnknownCandidate},
	{types.ErrInvalidSalt, ErrInvalidSalt},
	{types.ErrRegistrationClosed, ErrRegistrationClosed},
	{types.ErrInvalidVoter, ErrInvalidVoter},
	{types.ErrPendingSubmissions, ErrPendingSubmissions},
	{types.ErrNotFound, ErrResourceNotFound},
}

// apiError returns the API error matching the kind of err. Unknown errors
// become ErrGenericInternalServerError.
func apiError(err error) Error {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return Error{Err: err, Code: k.api.Code, HTTPstatus: k.api.HTTPstatus}
		}
	}
	return ErrGenericInternalServerError.WithErr(err)
}
