package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/chain"
	"github.com/R3E-Network/facetctl/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	)
}

func newTestClient(t *testing.T, url string) *chain.Client {
	t.Helper()
	client, err := chain.NewClient(chain.Config{RPCURL: url, ChainID: 31337})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := chain.NewClient(chain.Config{})
	assert.Error(t, err)
}

func TestCall_RPCError(t *testing.T) {
	server := testutil.NewHTTPTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(testutil.MakeRPCError(nil, -32000, "boom", nil))
	})
	client := newTestClient(t, server.URL)

	_, err := client.BlockNumber(context.Background())
	require.Error(t, err)
	var rpcErr *chain.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestChainID_AsksNodeOnce(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	node.Handle("eth_chainId", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return "0x539", nil
	})
	client, err := chain.NewClient(chain.Config{RPCURL: server.URL})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		id, err := client.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(1337), id)
	}
	assert.Equal(t, []string{"eth_chainId"}, node.Calls())
}

func TestEthCall(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	node.Handle("eth_call", func(req testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		var msg chain.TxRequest
		_ = json.Unmarshal(req.Params[0], &msg)
		assert.Equal(t, "0x52ef6b2c", msg.Data)
		return "0x00ff", nil
	})
	client := newTestClient(t, server.URL)

	out, err := client.EthCall(context.Background(), chain.TxRequest{To: "0x01", Data: "0x52ef6b2c"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, out)
}

func TestSendTransactionAndWait_PollsUntilMined(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	var polls atomic.Int32
	node.Handle("eth_sendTransaction", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return "0xabc", nil
	})
	node.Handle("eth_getTransactionReceipt", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		if polls.Add(1) < 3 {
			return nil, nil
		}
		return chain.Receipt{TransactionHash: "0xabc", Status: "0x1", ContractAddress: "0x00000000000000000000000000000000000000aa"}, nil
	})
	client := newTestClient(t, server.URL)

	receipt, err := client.SendTransactionAndWait(context.Background(), chain.TxRequest{From: "0x01", Data: "0x6080"}, 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, int32(3), polls.Load())
}

func TestSendTransactionAndWait_Reverted(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	node.Handle("eth_sendTransaction", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return "0xdead", nil
	})
	node.Handle("eth_getTransactionReceipt", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return chain.Receipt{TransactionHash: "0xdead", Status: "0x0"}, nil
	})
	client := newTestClient(t, server.URL)

	receipt, err := client.SendTransactionAndWait(context.Background(), chain.TxRequest{}, time.Millisecond, time.Second)
	assert.ErrorIs(t, err, chain.ErrReverted)
	require.NotNil(t, receipt)
	assert.Equal(t, "0x0", receipt.Status)
}

func TestWaitForReceipt_Timeout(t *testing.T) {
	node, server := testutil.NewRPCNode(t)
	node.Handle("eth_getTransactionReceipt", func(testutil.RPCRequest) (interface{}, *testutil.RPCFault) {
		return nil, nil
	})
	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := client.WaitForReceipt(ctx, "0xpending", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRPCError_RevertReason(t *testing.T) {
	reason := append(abi.ComputeSelector("Error(string)").Bytes(), abi.Pack(abi.StringValue("LibDiamondCut: Can't add function that already exists"))...)
	hexReason := chain.EncodeBytes(reason)

	geth := &chain.RPCError{Code: 3, Message: "execution reverted", Data: json.RawMessage(`"` + hexReason + `"`)}
	assert.Equal(t, "LibDiamondCut: Can't add function that already exists", geth.RevertReason())
	assert.True(t, strings.HasSuffix(geth.Error(), "already exists"))

	hardhat := &chain.RPCError{Code: -32603, Message: "Error: VM Exception", Data: json.RawMessage(`{"message":"x","data":"` + hexReason + `"}`)}
	assert.Equal(t, geth.RevertReason(), hardhat.RevertReason())

	custom := &chain.RPCError{Code: 3, Message: "execution reverted", Data: json.RawMessage(`"0x12345678"`)}
	assert.Equal(t, "custom error 0x12345678", custom.RevertReason())

	plain := &chain.RPCError{Code: -1, Message: "nonce too low"}
	assert.Equal(t, "", plain.RevertReason())
	assert.Equal(t, "rpc error -1: nonce too low", plain.Error())
}

func TestDecodeRevertReason_Panic(t *testing.T) {
	data := append(abi.ComputeSelector("Panic(uint256)").Bytes(), abi.Pack(abi.Uint64Value(0x11))...)
	assert.Equal(t, "panic code 17", chain.DecodeRevertReason(data))
	assert.Equal(t, "", chain.DecodeRevertReason(nil))
}
