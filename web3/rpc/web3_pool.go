package rpc

// This package contains the Web3Pool struct, a pool of web3 endpoints grouped
// by chainID. The pool balances the load between the available endpoints of
// every chainID, flagging an endpoint as disabled when a call fails and
// switching to the next one. If every endpoint of a chainID fails, the pool
// enables all of them again and starts over.

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sethvargo/go-retry"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultMaxWeb3ClientRetries is the default number of retries to connect to
	// a web3 provider.
	DefaultMaxWeb3ClientRetries = 5
	// checkWeb3EndpointsTimeout is the timeout to check the web3 endpoints.
	checkWeb3EndpointsTimeout = time.Second * 10
	// connectRetryDelay is the initial delay between connection attempts.
	connectRetryDelay = 200 * time.Millisecond
)

// EthClient is the subset of the web3 client methods used by the pool.
// *ethclient.Client and the simulated backend client implement it.
type EthClient interface {
	ethereum.ChainIDReader
	ethereum.BlockNumberReader
	ethereum.GasEstimator
	ethereum.GasPricer1559
	ethereum.TransactionReader
	ethereum.TransactionSender
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Web3Endpoint is a web3 provider of a chain.
type Web3Endpoint struct {
	ChainID uint64 `json:"chainId"`
	URI     string
	client  EthClient
}

// Web3Pool struct contains a map of chainID-[]*Web3Endpoint, where the key is
// the chainID and the value is an iterator over its endpoints.
type Web3Pool struct {
	mu        sync.RWMutex
	endpoints map[uint64]*Web3Iterator
}

// NewWeb3Pool method returns a new *Web3Pool instance.
func NewWeb3Pool() *Web3Pool {
	return &Web3Pool{
		endpoints: make(map[uint64]*Web3Iterator),
	}
}

// AddEndpoint method adds a new web3 provider URI to the Web3Pool.
// It returns the chainID of the endpoint added to the pool.
func (nm *Web3Pool) AddEndpoint(uri string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), checkWeb3EndpointsTimeout)
	defer cancel()
	// init the web3 client
	client, err := connect(ctx, uri)
	if err != nil {
		return 0, fmt.Errorf("error dialing web3 provider uri '%s': %w", uri, err)
	}
	return nm.AddClient(ctx, uri, client)
}

// AddClient adds an already connected web3 client to the pool, identified by
// uri. It returns the chainID reported by the client.
func (nm *Web3Pool) AddClient(ctx context.Context, uri string, client EthClient) (uint64, error) {
	// get the chainID from the web3 endpoint
	bChainID, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("error getting the chainID from the web3 provider '%s': %w", uri, err)
	}
	chainID := bChainID.Uint64()
	endpoint := &Web3Endpoint{
		ChainID: chainID,
		URI:     uri,
		client:  client,
	}
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if _, ok := nm.endpoints[chainID]; !ok {
		nm.endpoints[chainID] = NewWeb3Iterator(endpoint)
	} else {
		nm.endpoints[chainID].Add(endpoint)
	}
	log.Infow("web3 endpoint added", "chainID", chainID, "uri", uri)
	return chainID, nil
}

// DelEndpoint method disables a web3 provider URI in every chainID where it
// was found.
func (nm *Web3Pool) DelEndpoint(uri string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	for _, endpoints := range nm.endpoints {
		endpoints.Disable(uri)
	}
}

// Endpoint method returns the next available Web3Endpoint configured for the
// chainID provided. If no endpoint is configured, returns an error.
func (nm *Web3Pool) Endpoint(chainID uint64) (*Web3Endpoint, error) {
	nm.mu.RLock()
	endpoints, ok := nm.endpoints[chainID]
	nm.mu.RUnlock()
	if ok {
		return endpoints.Next()
	}
	return nil, fmt.Errorf("no endpoint found for chainID %d", chainID)
}

// DisableEndpoint method sets the available flag to false for the URI provided
// in the chainID provided.
func (nm *Web3Pool) DisableEndpoint(chainID uint64, uri string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if endpoints, ok := nm.endpoints[chainID]; ok {
		endpoints.Disable(uri)
	}
}

// NumberOfEndpoints method returns the total number (or just the available ones)
// of endpoints for the chainID provided.
func (nm *Web3Pool) NumberOfEndpoints(chainID uint64, onlyAvailable bool) int {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if endpoints, ok := nm.endpoints[chainID]; ok {
		n := endpoints.Available()
		if !onlyAvailable {
			n += endpoints.Disabled()
		}
		return n
	}
	return 0
}

// Client method returns a new *Client instance for the chainID provided.
// It returns an error if the endpoint is not found.
func (nm *Web3Pool) Client(chainID uint64) (*Client, error) {
	if nm.NumberOfEndpoints(chainID, false) == 0 {
		return nil, fmt.Errorf("no endpoint found for chainID %d", chainID)
	}
	return &Client{w3p: nm, chainID: chainID}, nil
}

// connect method returns a new *ethclient.Client instance for the URI provided.
// It retries to connect to the web3 provider if it fails, up to the
// DefaultMaxWeb3ClientRetries times.
func connect(ctx context.Context, uri string) (*ethclient.Client, error) {
	var client *ethclient.Client
	backoff := retry.WithMaxRetries(DefaultMaxWeb3ClientRetries, retry.NewExponential(connectRetryDelay))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		if client, err = ethclient.DialContext(ctx, uri); err != nil {
			log.Debugw("web3 dial failed, retrying", "uri", uri, "error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return client, nil
}
