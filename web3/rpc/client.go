package rpc

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sethvargo/go-retry"
	"go.vocdoni.io/dvote/log"
)

const (
	defaultRetries = 3
	defaultTimeout = 10 * time.Second
	retryDelay     = 100 * time.Millisecond
)

// Client is a web3 client bound to a chain of the pool. Every call is sent to
// the next available endpoint; on failure the endpoint is disabled and the call
// retried on another one. Not found errors are returned without retrying.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

// call runs fn against the pool endpoints, retrying with exponential backoff.
func (c *Client) call(ctx context.Context, method string, fn func(context.Context, EthClient) error) error {
	backoff := retry.WithMaxRetries(defaultRetries, retry.NewExponential(retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		endpoint, err := c.w3p.Endpoint(c.chainID)
		if err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
		if err := fn(cctx, endpoint.client); err != nil {
			if permanentError(err) || ctx.Err() != nil {
				return err
			}
			log.Debugw("web3 call failed, switching endpoint",
				"method", method,
				"chainID", c.chainID,
				"uri", endpoint.URI,
				"error", err.Error())
			c.w3p.DisableEndpoint(c.chainID, endpoint.URI)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// permanentError reports whether retrying the call cannot change the result.
func permanentError(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "execution reverted")
}

// ChainID returns the chainID of the client.
func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(c.chainID), nil
}

// BlockNumber returns the most recent block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, "BlockNumber", func(ctx context.Context, cli EthClient) (err error) {
		n, err = cli.BlockNumber(ctx)
		return
	})
	return n, err
}

// HeaderByNumber returns a block header from the current canonical chain. If
// number is nil, the latest known header is returned.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.call(ctx, "HeaderByNumber", func(ctx context.Context, cli EthClient) (err error) {
		header, err = cli.HeaderByNumber(ctx, number)
		return
	})
	return header, err
}

// CodeAt returns the code of the given account.
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var code []byte
	err := c.call(ctx, "CodeAt", func(ctx context.Context, cli EthClient) (err error) {
		code, err = cli.CodeAt(ctx, account, blockNumber)
		return
	})
	return code, err
}

// PendingNonceAt returns the account nonce in the pending state.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, "PendingNonceAt", func(ctx context.Context, cli EthClient) (err error) {
		nonce, err = cli.PendingNonceAt(ctx, account)
		return
	})
	return nonce, err
}

// SuggestGasTipCap retrieves the currently suggested gas tip cap.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := c.call(ctx, "SuggestGasTipCap", func(ctx context.Context, cli EthClient) (err error) {
		tip, err = cli.SuggestGasTipCap(ctx)
		return
	})
	return tip, err
}

// EstimateGas estimates the gas needed to execute the call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.call(ctx, "EstimateGas", func(ctx context.Context, cli EthClient) (err error) {
		gas, err = cli.EstimateGas(ctx, msg)
		return
	})
	return gas, err
}

// SendTransaction injects the signed transaction into the pending pool. A
// transaction already known by an endpoint is considered sent.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.call(ctx, "SendTransaction", func(ctx context.Context, cli EthClient) error {
		if err := cli.SendTransaction(ctx, tx); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "already known") {
				return nil
			}
			return err
		}
		return nil
	})
}

// TransactionByHash returns the transaction with the given hash.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var (
		tx        *types.Transaction
		isPending bool
	)
	err := c.call(ctx, "TransactionByHash", func(ctx context.Context, cli EthClient) (err error) {
		tx, isPending, err = cli.TransactionByHash(ctx, hash)
		return
	})
	return tx, isPending, err
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.call(ctx, "TransactionReceipt", func(ctx context.Context, cli EthClient) (err error) {
		receipt, err = cli.TransactionReceipt(ctx, hash)
		return
	})
	return receipt, err
}
