package chain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/facetctl/internal/abi"
)

var (
	errorStringSelector = abi.ComputeSelector("Error(string)")
	panicSelector       = abi.ComputeSelector("Panic(uint256)")
)

// RevertData extracts raw revert bytes from the error's data member. Nodes differ:
// geth sends a hex string, Hardhat and Anvil wrap it in an object.
func (e *RPCError) RevertData() []byte {
	if len(e.Data) == 0 {
		return nil
	}
	data := gjson.ParseBytes(e.Data)
	var candidate string
	switch {
	case data.Type == gjson.String:
		candidate = data.String()
	case data.IsObject():
		for _, path := range []string{"data", "originalError.data", "data.data"} {
			if v := data.Get(path); v.Type == gjson.String {
				candidate = v.String()
				break
			}
		}
	}
	if !strings.HasPrefix(candidate, "0x") {
		return nil
	}
	b, err := DecodeBytes(candidate)
	if err != nil {
		return nil
	}
	return b
}

// RevertReason decodes the revert payload into a readable reason.
func (e *RPCError) RevertReason() string {
	return DecodeRevertReason(e.RevertData())
}

// DecodeRevertReason renders Error(string), Panic(uint256) and custom error
// payloads. Empty input yields "".
func DecodeRevertReason(data []byte) string {
	if len(data) < abi.SelectorLength {
		return ""
	}
	head, body := data[:abi.SelectorLength], data[abi.SelectorLength:]
	switch {
	case bytes.Equal(head, errorStringSelector[:]):
		out, err := abi.Unpack([]string{"string"}, body)
		if err == nil {
			return out[0].(string)
		}
	case bytes.Equal(head, panicSelector[:]):
		out, err := abi.Unpack([]string{"uint256"}, body)
		if err == nil {
			return "panic code " + abi.FormatValue(out[0])
		}
	}
	var sel abi.Selector
	copy(sel[:], head)
	return fmt.Sprintf("custom error %s", sel)
}
