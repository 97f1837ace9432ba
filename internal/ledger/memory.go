package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
)

// inertReturnWords is how many zero words unregistered code returns from any call.
const inertReturnWords = 8

// Storage is the key/value state a simulated contract reads and writes.
type Storage map[string][]byte

func (s Storage) clone() Storage {
	out := make(Storage, len(s))
	for k, v := range s {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Invocation is the context a simulated function executes in. When reached
// through a diamond, Self is the proxy and Store is the proxy's storage.
type Invocation struct {
	Sender   abi.Address
	Self     abi.Address
	Args     []byte
	Store    Storage
	ReadOnly bool
}

// Handler implements one simulated function. A returned error reverts the call.
type Handler func(inv *Invocation) ([]byte, error)

// Contract is simulated code keyed by canonical function signature.
type Contract struct {
	Functions map[string]Handler
}

type account struct {
	name     string
	handlers map[abi.Selector]Handler
	storage  Storage
	routes   *diamond.RoutingTable
}

// Memory is an in-process ledger that executes deployments, diamond cuts and
// routed calls without a node. Code registered by name is attached to matching
// deployments; unregistered code is inert and returns zero words.
type Memory struct {
	mu       sync.Mutex
	deployer abi.Address
	nonce    uint64
	block    uint64
	code     map[string]map[abi.Selector]Handler
	diamonds map[string]struct{}
	failures map[string]error
	accounts map[abi.Address]*account
}

// NewMemory returns an empty simulated ledger signing as deployer.
func NewMemory(deployer abi.Address) *Memory {
	return &Memory{
		deployer: deployer,
		code:     make(map[string]map[abi.Selector]Handler),
		diamonds: make(map[string]struct{}),
		failures: make(map[string]error),
		accounts: make(map[abi.Address]*account),
	}
}

// Register attaches simulated code to every later deployment named name.
func (m *Memory) Register(name string, c Contract) {
	handlers := make(map[abi.Selector]Handler, len(c.Functions))
	for sig, h := range c.Functions {
		handlers[abi.ComputeSelector(sig)] = h
	}
	m.mu.Lock()
	m.code[name] = handlers
	m.mu.Unlock()
}

// RegisterDiamond marks deployments named name as diamond proxies.
func (m *Memory) RegisterDiamond(name string) {
	m.mu.Lock()
	m.diamonds[name] = struct{}{}
	m.mu.Unlock()
}

// FailDeploy makes deployments named name fail with err.
func (m *Memory) FailDeploy(name string, err error) {
	m.mu.Lock()
	m.failures[name] = err
	m.mu.Unlock()
}

// NewDiamond deploys an empty diamond proxy and returns its address.
func (m *Memory) NewDiamond(name string) abi.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := m.create(name)
	m.accounts[addr].routes = diamond.NewRoutingTable()
	return addr
}

// Routes returns a copy of the proxy's routing table, or nil for non-proxies.
func (m *Memory) Routes(proxy abi.Address) *diamond.RoutingTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[proxy]
	if !ok || acc.routes == nil {
		return nil
	}
	return acc.routes.Clone()
}

// StorageAt returns a copy of the storage held at addr.
func (m *Memory) StorageAt(addr abi.Address) Storage {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[addr]
	if !ok {
		return nil
	}
	return acc.storage.clone()
}

// Deployer implements Ledger.
func (m *Memory) Deployer() abi.Address { return m.deployer }

// Deploy implements Ledger.
func (m *Memory) Deploy(ctx context.Context, name string, code []byte) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[name]; err != nil {
		return nil, fmt.Errorf("deploy %s: %w", name, err)
	}
	addr := m.create(name)
	if _, ok := m.diamonds[name]; ok {
		m.accounts[addr].routes = diamond.NewRoutingTable()
	}
	r := m.receipt()
	r.ContractAddress = addr
	return r, nil
}

// Transact implements Ledger.
func (m *Memory) Transact(ctx context.Context, to abi.Address, data []byte) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.execute(to, data, false); err != nil {
		return nil, err
	}
	return m.receipt(), nil
}

// Call implements Ledger.
func (m *Memory) Call(ctx context.Context, to abi.Address, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.execute(to, data, true)
}

func (m *Memory) create(name string) abi.Address {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], m.nonce)
	m.nonce++
	addr := abi.BytesToAddress(abi.Keccak256(m.deployer[:], n[:]))
	m.accounts[addr] = &account{name: name, handlers: m.code[name], storage: Storage{}}
	return addr
}

func (m *Memory) receipt() *Receipt {
	m.block++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], m.block)
	return &Receipt{
		TxHash:      "0x" + hex.EncodeToString(abi.Keccak256([]byte("tx"), n[:])),
		BlockNumber: m.block,
	}
}

func (m *Memory) execute(to abi.Address, data []byte, readOnly bool) ([]byte, error) {
	acc, ok := m.accounts[to]
	if !ok {
		return nil, &RevertError{Reason: fmt.Sprintf("no contract at %s", to)}
	}
	if acc.routes != nil {
		return m.dispatch(to, acc, data, readOnly)
	}
	return m.invoke(acc, to, acc, data, readOnly)
}

// invoke runs code's handler for data against owner's storage. Writes commit
// only when the handler succeeds and the call is not read-only.
func (m *Memory) invoke(code *account, self abi.Address, owner *account, data []byte, readOnly bool) ([]byte, error) {
	scratch := owner.storage.clone()
	out, err := m.run(code, self, scratch, data, readOnly)
	if err != nil {
		return nil, err
	}
	if !readOnly {
		owner.storage = scratch
	}
	return out, nil
}

func (m *Memory) run(code *account, self abi.Address, store Storage, data []byte, readOnly bool) ([]byte, error) {
	if code.handlers == nil {
		return make([]byte, inertReturnWords*abi.WordSize), nil
	}
	if len(data) < abi.SelectorLength {
		return nil, &RevertError{Reason: code.name + ": no fallback function"}
	}
	var sel abi.Selector
	copy(sel[:], data)
	h, ok := code.handlers[sel]
	if !ok {
		return nil, &RevertError{Reason: fmt.Sprintf("%s: function selector %s was not recognized", code.name, sel)}
	}
	out, err := h(&Invocation{Sender: m.deployer, Self: self, Args: data[abi.SelectorLength:], Store: store, ReadOnly: readOnly})
	if err != nil {
		var rev *RevertError
		if errors.As(err, &rev) {
			return nil, rev
		}
		return nil, &RevertError{Reason: err.Error()}
	}
	return out, nil
}

func (m *Memory) dispatch(proxy abi.Address, acc *account, data []byte, readOnly bool) ([]byte, error) {
	if len(data) < abi.SelectorLength {
		return nil, &RevertError{Reason: "Diamond: Function does not exist"}
	}
	var sel abi.Selector
	copy(sel[:], data)

	switch sel {
	case diamond.DiamondCutFunction.Selector():
		return nil, m.cut(proxy, acc, data, readOnly)
	case diamond.FacetAddressesFunction.Selector():
		facets := acc.routes.FacetAddresses()
		vals := make([]abi.Value, len(facets))
		for i, f := range facets {
			vals[i] = abi.AddressValue(f)
		}
		return abi.Pack(abi.ArrayValue(vals...)), nil
	case diamond.FacetAddressFunction.Selector():
		query, err := abi.NewDecoder(data[abi.SelectorLength:]).Selector(0)
		if err != nil {
			return nil, &RevertError{Reason: "facetAddress: " + err.Error()}
		}
		facet, _ := acc.routes.Lookup(query)
		return abi.Pack(abi.AddressValue(facet)), nil
	}

	facet, ok := acc.routes.Lookup(sel)
	if !ok {
		return nil, &RevertError{Reason: "Diamond: Function does not exist"}
	}
	code, ok := m.accounts[facet]
	if !ok {
		return nil, &RevertError{Reason: fmt.Sprintf("Diamond: no code at facet %s", facet)}
	}
	return m.invoke(code, proxy, acc, data, readOnly)
}

// cut applies a diamondCut batch and its optional init call as one unit.
func (m *Memory) cut(proxy abi.Address, acc *account, data []byte, readOnly bool) error {
	payload, err := diamond.DecodeDiamondCut(data)
	if err != nil {
		return &RevertError{Reason: "diamondCut: " + err.Error()}
	}
	next := acc.routes.Clone()
	if err := next.Apply(payload.Entries); err != nil {
		return &RevertError{Reason: err.Error()}
	}

	store := acc.storage.clone()
	if !payload.InitAddress.IsZero() {
		code, ok := m.accounts[payload.InitAddress]
		if !ok {
			return &RevertError{Reason: "LibDiamondCut: _init address has no code"}
		}
		if _, err := m.run(code, proxy, store, payload.InitCalldata, readOnly); err != nil {
			var rev *RevertError
			errors.As(err, &rev)
			return &RevertError{Reason: "LibDiamondCut: _init function reverted: " + rev.Reason}
		}
	} else if len(payload.InitCalldata) > 0 {
		return &RevertError{Reason: "LibDiamondCut: _init is address(0) but _calldata is not empty"}
	}

	if !readOnly {
		acc.routes = next
		acc.storage = store
	}
	return nil
}

// IsRevert reports whether err is a contract-level rejection.
func IsRevert(err error) bool {
	var rev *RevertError
	return errors.As(err, &rev)
}
