package rpc

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	qt "github.com/frankban/quicktest"
)

// fakeClient answers the calls used in these tests. Any other method panics.
type fakeClient struct {
	EthClient
	chainID uint64
	block   uint64
	err     error
	calls   int
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(f.chainID), nil
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.block, nil
}

func (f *fakeClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.calls++
	return nil, ethereum.NotFound
}

func TestClientFailover(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	pool := NewWeb3Pool()

	bad := &fakeClient{chainID: 5, err: fmt.Errorf("connection refused")}
	good := &fakeClient{chainID: 5, block: 42}
	chainID, err := pool.AddClient(ctx, "bad", bad)
	c.Assert(err, qt.IsNil)
	c.Assert(chainID, qt.Equals, uint64(5))
	_, err = pool.AddClient(ctx, "good", good)
	c.Assert(err, qt.IsNil)
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 2)

	cli, err := pool.Client(5)
	c.Assert(err, qt.IsNil)
	n, err := cli.BlockNumber(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, uint64(42))
	c.Assert(bad.calls, qt.Equals, 1)
	c.Assert(pool.NumberOfEndpoints(5, true), qt.Equals, 1)
	c.Assert(pool.NumberOfEndpoints(5, false), qt.Equals, 2)

	id, err := cli.ChainID(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(id.Uint64(), qt.Equals, uint64(5))
}

func TestClientNotFoundIsNotRetried(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	pool := NewWeb3Pool()

	only := &fakeClient{chainID: 7}
	_, err := pool.AddClient(ctx, "only", only)
	c.Assert(err, qt.IsNil)
	cli, err := pool.Client(7)
	c.Assert(err, qt.IsNil)

	_, err = cli.TransactionReceipt(ctx, common.Hash{})
	c.Assert(err, qt.Equals, ethereum.NotFound)
	c.Assert(only.calls, qt.Equals, 1)
	c.Assert(pool.NumberOfEndpoints(7, true), qt.Equals, 1)
}

func TestClientAllEndpointsFail(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	pool := NewWeb3Pool()

	failing := &fakeClient{chainID: 9, err: fmt.Errorf("boom")}
	_, err := pool.AddClient(ctx, "failing", failing)
	c.Assert(err, qt.IsNil)
	cli, err := pool.Client(9)
	c.Assert(err, qt.IsNil)

	_, err = cli.BlockNumber(ctx)
	c.Assert(err, qt.ErrorMatches, "boom")
	c.Assert(failing.calls, qt.Equals, defaultRetries+1)

	_, err = pool.Client(1)
	c.Assert(err, qt.IsNotNil)
}

func TestIterator(t *testing.T) {
	c := qt.New(t)
	it := NewWeb3Iterator(&Web3Endpoint{URI: "a"}, &Web3Endpoint{URI: "b"})
	e, err := it.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(e.URI, qt.Equals, "a")
	e, err = it.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(e.URI, qt.Equals, "b")
	e, err = it.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(e.URI, qt.Equals, "a")

	it.Disable("a")
	it.Disable("b")
	c.Assert(it.Available(), qt.Equals, 0)
	c.Assert(it.Disabled(), qt.Equals, 2)
	// every endpoint disabled, start over
	_, err = it.Next()
	c.Assert(err, qt.IsNil)
	c.Assert(it.Available(), qt.Equals, 2)

	_, err = NewWeb3Iterator().Next()
	c.Assert(err, qt.IsNotNil)
}
