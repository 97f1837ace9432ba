package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/chain"
	"github.com/R3E-Network/facetctl/internal/diamond"
	"github.com/R3E-Network/facetctl/internal/ledger"
	"github.com/R3E-Network/facetctl/internal/testutil"
)

var deployer = abi.BytesToAddress([]byte{0xde, 0xad})

func counterContract() ledger.Contract {
	return ledger.Contract{Functions: map[string]ledger.Handler{
		"increment()": func(inv *ledger.Invocation) ([]byte, error) {
			n := len(inv.Store["count"])
			inv.Store["count"] = make([]byte, n+1)
			return nil, nil
		},
		"count()": func(inv *ledger.Invocation) ([]byte, error) {
			return abi.Pack(abi.Uint64Value(uint64(len(inv.Store["count"])))), nil
		},
		"fail()": func(inv *ledger.Invocation) ([]byte, error) {
			inv.Store["count"] = nil
			return nil, errors.New("Counter: always fails")
		},
	}}
}

func call(t *testing.T, sig string) []byte {
	t.Helper()
	fn, err := abi.ParseSignature(sig)
	require.NoError(t, err)
	data, err := abi.EncodeCall(fn)
	require.NoError(t, err)
	return data
}

func cutCalldata(t *testing.T, p diamond.CutPayload) []byte {
	t.Helper()
	data, err := diamond.EncodeDiamondCut(p)
	require.NoError(t, err)
	return data
}

func TestMemory_DeployIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, b := ledger.NewMemory(deployer), ledger.NewMemory(deployer)

	ra, err := a.Deploy(ctx, "Counter", []byte{0x60})
	require.NoError(t, err)
	rb, err := b.Deploy(ctx, "Counter", []byte{0x60})
	require.NoError(t, err)
	assert.Equal(t, ra.ContractAddress, rb.ContractAddress)
	assert.False(t, ra.ContractAddress.IsZero())

	next, err := a.Deploy(ctx, "Counter", nil)
	require.NoError(t, err)
	assert.NotEqual(t, ra.ContractAddress, next.ContractAddress)
	assert.Greater(t, next.BlockNumber, ra.BlockNumber)
}

func TestMemory_FailDeploy(t *testing.T) {
	m := ledger.NewMemory(deployer)
	m.FailDeploy("Broken", errors.New("out of gas"))

	_, err := m.Deploy(context.Background(), "Broken", nil)
	assert.ErrorContains(t, err, "out of gas")
}

func TestMemory_InertCodeReturnsZeroWords(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory(deployer)
	r, err := m.Deploy(ctx, "Unknown", nil)
	require.NoError(t, err)

	out, err := m.Call(ctx, r.ContractAddress, call(t, "anything()"))
	require.NoError(t, err)
	assert.Len(t, out, 8*abi.WordSize)

	_, err = m.Call(ctx, abi.BytesToAddress([]byte{0x01}), call(t, "anything()"))
	assert.True(t, ledger.IsRevert(err))
}

func TestMemory_DirectCallsAndReverts(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory(deployer)
	m.Register("Counter", counterContract())
	r, err := m.Deploy(ctx, "Counter", nil)
	require.NoError(t, err)
	counter := r.ContractAddress

	_, err = m.Transact(ctx, counter, call(t, "increment()"))
	require.NoError(t, err)
	_, err = m.Call(ctx, counter, call(t, "increment()"))
	require.NoError(t, err)

	_, err = m.Transact(ctx, counter, call(t, "fail()"))
	var rev *ledger.RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, "Counter: always fails", rev.Reason)

	// Read-only calls and reverted transactions leave storage alone.
	assert.Len(t, m.StorageAt(counter)["count"], 1)

	_, err = m.Transact(ctx, counter, call(t, "missing()"))
	assert.ErrorContains(t, err, "was not recognized")
}

func TestMemory_DiamondRoutesThroughProxyStorage(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory(deployer)
	m.Register("Counter", counterContract())
	proxy := m.NewDiamond("Diamond")
	r, err := m.Deploy(ctx, "Counter", nil)
	require.NoError(t, err)
	facet := r.ContractAddress

	_, err = m.Transact(ctx, proxy, call(t, "increment()"))
	assert.ErrorContains(t, err, "Diamond: Function does not exist")

	_, err = m.Transact(ctx, proxy, cutCalldata(t, diamond.CutPayload{Entries: []diamond.CutEntry{{
		ModuleAddress: facet,
		Action:        diamond.Add,
		Selectors:     []abi.Selector{abi.ComputeSelector("increment()"), abi.ComputeSelector("count()")},
	}}}))
	require.NoError(t, err)

	_, err = m.Transact(ctx, proxy, call(t, "increment()"))
	require.NoError(t, err)
	out, err := m.Call(ctx, proxy, call(t, "count()"))
	require.NoError(t, err)
	vals, err := abi.Unpack([]string{"uint256"}, out)
	require.NoError(t, err)
	assert.Equal(t, "1", abi.FormatValue(vals[0]))

	assert.Len(t, m.StorageAt(proxy)["count"], 1)
	assert.Empty(t, m.StorageAt(facet))

	loupe := diamond.NewLoupe(m, proxy)
	facets, err := loupe.FacetAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []abi.Address{facet}, facets)
	got, err := loupe.FacetAddress(ctx, abi.ComputeSelector("count()"))
	require.NoError(t, err)
	assert.Equal(t, facet, got)
	none, err := loupe.FacetAddress(ctx, abi.ComputeSelector("fail()"))
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestMemory_CutWithFailingInitRollsBack(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory(deployer)
	m.Register("Counter", counterContract())
	proxy := m.NewDiamond("Diamond")
	r, err := m.Deploy(ctx, "Counter", nil)
	require.NoError(t, err)

	entries := []diamond.CutEntry{{ModuleAddress: r.ContractAddress, Action: diamond.Add, Selectors: []abi.Selector{abi.ComputeSelector("count()")}}}
	_, err = m.Transact(ctx, proxy, cutCalldata(t, diamond.CutPayload{
		Entries:      entries,
		InitAddress:  r.ContractAddress,
		InitCalldata: call(t, "fail()"),
	}))
	require.ErrorContains(t, err, "_init function reverted: Counter: always fails")
	assert.Equal(t, 0, m.Routes(proxy).Len())

	_, err = m.Transact(ctx, proxy, cutCalldata(t, diamond.CutPayload{
		Entries:      entries,
		InitAddress:  r.ContractAddress,
		InitCalldata: call(t, "increment()"),
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Routes(proxy).Len())
	assert.Len(t, m.StorageAt(proxy)["count"], 1)
}

func TestMemory_InvalidCutIsRejected(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory(deployer)
	proxy := m.NewDiamond("Diamond")

	_, err := m.Transact(ctx, proxy, cutCalldata(t, diamond.CutPayload{Entries: []diamond.CutEntry{{
		Action:    diamond.Remove,
		Selectors: []abi.Selector{abi.ComputeSelector("count()")},
	}}}))
	assert.True(t, ledger.IsRevert(err))
	assert.ErrorContains(t, err, "can't remove function that doesn't exist")
}

func TestMemory_RegisteredDiamondName(t *testing.T) {
	m := ledger.NewMemory(deployer)
	m.RegisterDiamond("Diamond")
	r, err := m.Deploy(context.Background(), "Diamond", []byte{0x60})
	require.NoError(t, err)
	assert.NotNil(t, m.Routes(r.ContractAddress))
}

func TestMemory_CanceledContext(t *testing.T) {
	m := ledger.NewMemory(deployer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Deploy(ctx, "Counter", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func newRPCLedger(t *testing.T, node *testutil.RPCNode, url string) *ledger.RPC {
	t.Helper()
	node.Handle("eth_accounts", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return []string{"0x00000000000000000000000000000000000000d1"}, nil
	})
	client, err := chain.NewClient(chain.Config{RPCURL: url, ChainID: 31337})
	require.NoError(t, err)
	l, err := ledger.NewRPC(context.Background(), client, ledger.RPCOptions{PollInterval: time.Millisecond, TxTimeout: time.Second})
	require.NoError(t, err)
	return l
}

func TestRPC_DeployUsesReceiptAddress(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	l := newRPCLedger(t, node, server.URL)
	assert.Equal(t, abi.BytesToAddress([]byte{0xd1}), l.Deployer())

	node.Handle("eth_sendTransaction", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return "0xabc", nil
	})
	node.Handle("eth_getTransactionReceipt", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return chain.Receipt{TransactionHash: "0xabc", BlockNumber: "0x10", Status: "0x1", ContractAddress: "0x00000000000000000000000000000000000000aa"}, nil
	})

	r, err := l.Deploy(context.Background(), "Counter", []byte{0x60, 0x80})
	require.NoError(t, err)
	assert.Equal(t, abi.BytesToAddress([]byte{0xaa}), r.ContractAddress)
	assert.Equal(t, uint64(16), r.BlockNumber)

	_, err = l.Deploy(context.Background(), "Empty", nil)
	assert.ErrorContains(t, err, "empty creation code")
}

func TestRPC_CallRevertReason(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	l := newRPCLedger(t, node, server.URL)

	reason := append(abi.ComputeSelector("Error(string)").Bytes(), abi.Pack(abi.StringValue("Diamond: Function does not exist"))...)
	node.Handle("eth_call", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return nil, &testutil.RPCFault{Code: 3, Message: "execution reverted", Data: chain.EncodeBytes(reason)}
	})

	_, err := l.Call(context.Background(), abi.BytesToAddress([]byte{0x01}), call(t, "count()"))
	var rev *ledger.RevertError
	require.ErrorAs(t, err, &rev)
	assert.Equal(t, "Diamond: Function does not exist", rev.Reason)
}

func TestRPC_MinedRevert(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	l := newRPCLedger(t, node, server.URL)
	node.Handle("eth_sendTransaction", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return "0xdead", nil
	})
	node.Handle("eth_getTransactionReceipt", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return chain.Receipt{TransactionHash: "0xdead", Status: "0x0"}, nil
	})

	_, err := l.Transact(context.Background(), abi.BytesToAddress([]byte{0x01}), call(t, "increment()"))
	assert.True(t, ledger.IsRevert(err))
	assert.ErrorContains(t, err, "0xdead")
}

func TestNewRPC_NoAccounts(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	node.Handle("eth_accounts", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return []string{}, nil
	})
	client, err := chain.NewClient(chain.Config{RPCURL: server.URL})
	require.NoError(t, err)

	_, err = ledger.NewRPC(context.Background(), client, ledger.RPCOptions{})
	assert.ErrorContains(t, err, "no unlocked accounts")
}
