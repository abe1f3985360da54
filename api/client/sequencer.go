package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/commit-reveal-sequencer/api"
	"github.com/vocdoni/commit-reveal-sequencer/types"
	"github.com/vocdoni/commit-reveal-sequencer/voting"
)

// APIError is returned by the typed methods when the server answers with a
// non 200 status.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (status %d): %s", e.Code, e.Status, e.Message)
}

// do performs a JSON request and decodes a successful response into out, if
// not nil.
func (c *HTTPclient) do(method string, body, out any, urlPath ...string) error {
	data, status, err := c.Request(method, body, nil, urlPath...)
	if err != nil {
		return err
	}
	return decodeResponse(data, status, out)
}

func decodeResponse(data []byte, status int, out any) error {
	if status != http.StatusOK {
		apiErr := &APIError{Status: status, Message: string(data)}
		var resp api.ErrorResponse
		if err := json.Unmarshal(data, &resp); err == nil && resp.Code != 0 {
			apiErr.Code = resp.Code
			apiErr.Message = resp.Err
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func electionPath(id uuid.UUID, action string) []string {
	return []string{"elections", id.String(), action}
}

// CreateElection creates a new election.
func (c *HTTPclient) CreateElection(setup *types.ElectionSetup) (*types.Election, error) {
	e := &types.Election{}
	if err := c.do(HTTPPOST, setup, e, api.ElectionsEndpoint); err != nil {
		return nil, err
	}
	return e, nil
}

// Election returns the election.
func (c *HTTPclient) Election(id uuid.UUID) (*types.Election, error) {
	e := &types.Election{}
	if err := c.do(HTTPGET, nil, e, "elections", id.String()); err != nil {
		return nil, err
	}
	return e, nil
}

// OpenElection opens the election.
func (c *HTTPclient) OpenElection(id uuid.UUID) (*types.Election, error) {
	e := &types.Election{}
	if err := c.do(HTTPPUT, nil, e, electionPath(id, "open")...); err != nil {
		return nil, err
	}
	return e, nil
}

// CloseElection closes the election.
func (c *HTTPclient) CloseElection(id uuid.UUID) (*types.Election, error) {
	e := &types.Election{}
	if err := c.do(HTTPPUT, nil, e, electionPath(id, "close")...); err != nil {
		return nil, err
	}
	return e, nil
}

// TallyElection tallies the election and returns the stored tally.
func (c *HTTPclient) TallyElection(id uuid.UUID) (*types.Tally, error) {
	t := &types.Tally{}
	if err := c.do(HTTPPUT, nil, t, electionPath(id, "tally")...); err != nil {
		return nil, err
	}
	return t, nil
}

// RegisterVoters registers the voters and returns the per entry report.
func (c *HTTPclient) RegisterVoters(id uuid.UUID, voters []types.VoterEntry) (*api.BulkRegisterResponse, error) {
	resp := &api.BulkRegisterResponse{}
	req := &api.BulkRegisterRequest{ElectionID: id, Voters: voters}
	if err := c.do(HTTPPOST, req, resp, api.VotersBulkEndpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// Commit sends a commitment and returns the receipt. The salt in the receipt
// must be kept to reveal the vote.
func (c *HTTPclient) Commit(req *voting.CommitRequest) (*types.CommitmentReceipt, error) {
	receipt := &types.CommitmentReceipt{}
	if err := c.do(HTTPPOST, req, receipt, api.VotesEndpoint); err != nil {
		return nil, err
	}
	return receipt, nil
}

// Reveal opens a committed vote.
func (c *HTTPclient) Reveal(req *voting.RevealRequest) (*api.RevealResponse, error) {
	resp := &api.RevealResponse{}
	if err := c.do(HTTPPOST, req, resp, api.VotesRevealEndpoint); err != nil {
		return nil, err
	}
	return resp, nil
}

// Verify checks a transaction hash.
func (c *HTTPclient) Verify(hash common.Hash) (*types.VerificationResult, error) {
	res := &types.VerificationResult{}
	if err := c.do(HTTPGET, nil, res, "votes", "verify", hash.Hex()); err != nil {
		return nil, err
	}
	return res, nil
}
