package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      uint64        `json:"id"`
}

// RPCResponse is a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. Data carries revert payloads from nodes
// that attach them.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if reason := e.RevertReason(); reason != "" && !strings.Contains(e.Message, reason) {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, reason)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrReceiptNotFound is returned while a transaction is not yet mined.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// ErrReverted is returned for mined transactions with a failed status.
var ErrReverted = errors.New("transaction reverted")

// Receipt is the subset of a transaction receipt facetctl reads.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
	ContractAddress string `json:"contractAddress"`
	GasUsed         string `json:"gasUsed"`
	From            string `json:"from"`
	To              string `json:"to"`
}

// Succeeded reports a 0x1 status.
func (r *Receipt) Succeeded() bool { return r.Status == "0x1" }

// TxRequest is an eth_sendTransaction / eth_call parameter object.
type TxRequest struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// EncodeBytes renders b as 0x-prefixed hex.
func EncodeBytes(b []byte) string { return "0x" + hex.EncodeToString(b) }

// DecodeBytes parses 0x-prefixed hex.
func DecodeBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// EncodeQuantity renders n as a JSON-RPC quantity.
func EncodeQuantity(n uint64) string { return "0x" + strconv.FormatUint(n, 16) }

func decodeQuantity(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return ParseQuantity(s)
}

// ParseQuantity parses a 0x-prefixed JSON-RPC quantity.
func ParseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("quantity %q without 0x prefix", s)
	}
	return strconv.ParseUint(s[2:], 16, 64)
}

func isNullResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
