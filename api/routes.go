package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"

	ElectionURLParam = "electionId"
	WalletURLParam   = "wallet"
	TxHashURLParam   = "txHash"

	RecountQueryParam = "recount"

	// ElectionsEndpoint creates (POST) and lists (GET) elections
	ElectionsEndpoint = "/elections"
	// ElectionEndpoint returns a single election
	ElectionEndpoint = "/elections/{" + ElectionURLParam + "}"
	// ElectionCandidatesEndpoint replaces the candidates of a Created election
	ElectionCandidatesEndpoint = ElectionEndpoint + "/candidates"
	// ElectionOpenEndpoint, ElectionCloseEndpoint and ElectionTallyEndpoint
	// move the election to the next phase. GET on the tally endpoint returns
	// the stored tally, or recounts it from the stored reveals when the
	// RecountQueryParam is true.
	ElectionOpenEndpoint  = ElectionEndpoint + "/open"
	ElectionCloseEndpoint = ElectionEndpoint + "/close"
	ElectionTallyEndpoint = ElectionEndpoint + "/tally"
	// ElectionAuditEndpoint lists the rejected reveals of an election
	ElectionAuditEndpoint = ElectionEndpoint + "/audit"

	// VotersBulkEndpoint registers a list of voters
	VotersBulkEndpoint = "/voters/bulk"
	// VotersCSVEndpoint registers voters from a text/csv body, the election
	// is given by the electionId query parameter
	VotersCSVEndpoint = "/voters/csv"
	// VotersEndpoint lists the voters of an election
	VotersEndpoint = "/voters/{" + ElectionURLParam + "}"
	// VoterCheckEndpoint reports the eligibility of a wallet
	VoterCheckEndpoint = "/voters/check/{" + ElectionURLParam + "}/{" + WalletURLParam + "}"

	// VotesEndpoint is the endpoint for committing a vote
	VotesEndpoint = "/votes"
	// VotesRevealEndpoint is the endpoint for revealing a committed vote
	VotesRevealEndpoint = "/votes/reveal"
	// VotesRevealCheckEndpoint checks an opening without storing it
	VotesRevealCheckEndpoint = "/votes/reveal/check"
	// VotesVerifyEndpoint verifies a transaction hash against the ledger
	VotesVerifyEndpoint = "/votes/verify/{" + TxHashURLParam + "}"
)
