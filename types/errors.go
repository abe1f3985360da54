package types

import "fmt"

// Error kinds shared by every component. Callers match them with errors.Is.
// Validation errors are terminal for the request, ledger errors are retryable
// once the engines have rolled back any local reservation.
var (
	ErrNotFound               = fmt.Errorf("not found")
	ErrInvalidTransition      = fmt.Errorf("invalid election status transition")
	ErrElectionNotOpen        = fmt.Errorf("election is not open")
	ErrElectionNotClosed      = fmt.Errorf("election is not closed")
	ErrNotEligible            = fmt.Errorf("voter is not eligible")
	ErrDuplicateWallet        = fmt.Errorf("wallet already bound to another voter")
	ErrAlreadyCommitted       = fmt.Errorf("voter already committed")
	ErrAlreadyRevealed        = fmt.Errorf("voter already revealed")
	ErrInvalidReveal          = fmt.Errorf("reveal does not match the commitment")
	ErrUnknownCandidate       = fmt.Errorf("unknown candidate")
	ErrLedgerSubmissionFailed = fmt.Errorf("ledger submission failed")
	ErrLedgerUnavailable      = fmt.Errorf("ledger unavailable")

	ErrInvalidElection    = fmt.Errorf("invalid election")
	ErrInvalidSalt        = fmt.Errorf("invalid salt")
	ErrPendingSubmissions = fmt.Errorf("ledger submissions still in flight")
	ErrTallyExists        = fmt.Errorf("tally already stored")
	ErrRegistrationClosed = fmt.Errorf("registration is closed for this election")
	ErrInvalidVoter       = fmt.Errorf("invalid voter entry")
)
