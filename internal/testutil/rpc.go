// Package testutil provides common testing utilities and a scriptable JSON-RPC node.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// NewHTTPTestServer starts an httptest server closed at test cleanup.
func NewHTTPTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// MakeRPCResponse wraps result in a JSON-RPC success envelope.
func MakeRPCResponse(id json.RawMessage, result interface{}) []byte {
	resultJSON, _ := json.Marshal(result)
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  json.RawMessage(resultJSON),
	}
	data, _ := json.Marshal(resp)
	return data
}

// MakeRPCError wraps an error object in a JSON-RPC envelope.
func MakeRPCError(id json.RawMessage, code int, message string, data interface{}) []byte {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		errObj["data"] = data
	}
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   errObj,
	}
	out, _ := json.Marshal(resp)
	return out
}

// RPCRequest is a decoded incoming JSON-RPC call.
type RPCRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// MethodHandler answers one RPC method: return a result, or a non-nil *RPCFault.
type MethodHandler func(req RPCRequest) (interface{}, *RPCFault)

// RPCFault is an error reply.
type RPCFault struct {
	Code    int
	Message string
	Data    interface{}
}

// RPCNode dispatches JSON-RPC calls by method name and records them.
type RPCNode struct {
	mu       sync.Mutex
	handlers map[string]MethodHandler
	calls    []RPCRequest
}

// NewRPCNode starts a test server backed by a new RPCNode.
func NewRPCNode(t *testing.T) (*RPCNode, *httptest.Server) {
	t.Helper()
	node := &RPCNode{handlers: make(map[string]MethodHandler)}
	server := NewHTTPTestServer(t, node.serve)
	return node, server
}

// Handle registers a method handler.
func (n *RPCNode) Handle(method string, h MethodHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// Calls returns the methods received so far, in order.
func (n *RPCNode) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	for i, c := range n.calls {
		out[i] = c.Method
	}
	return out
}

func (n *RPCNode) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.Write(MakeRPCError(nil, -32700, "parse error", nil))
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, req)
	h, ok := n.handlers[req.Method]
	n.mu.Unlock()

	if !ok {
		w.Write(MakeRPCError(req.ID, -32601, "method not found: "+req.Method, nil))
		return
	}
	result, fault := h(req)
	if fault != nil {
		w.Write(MakeRPCError(req.ID, fault.Code, fault.Message, fault.Data))
		return
	}
	w.Write(MakeRPCResponse(req.ID, result))
}
