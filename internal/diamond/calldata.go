package diamond

import (
	"bytes"
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// Standard diamond entry points.
var (
	DiamondCutFunction = abi.Function{
		Name:       "diamondCut",
		Inputs:     []string{"(address,uint8,bytes4[])[]", "address", "bytes"},
		Mutability: abi.NonPayable,
	}
	FacetAddressesFunction = abi.Function{
		Name:       "facetAddresses",
		Inputs:     []string{},
		Outputs:    []string{"address[]"},
		Mutability: abi.View,
	}
	FacetAddressFunction = abi.Function{
		Name:       "facetAddress",
		Inputs:     []string{"bytes4"},
		Outputs:    []string{"address"},
		Mutability: abi.View,
	}
)

// CutPayload is the full atomic mutation request.
type CutPayload struct {
	Entries      []CutEntry
	InitAddress  abi.Address
	InitCalldata []byte
}

// EncodeDiamondCut produces diamondCut calldata for the payload.
func EncodeDiamondCut(p CutPayload) ([]byte, error) {
	if len(p.Entries) == 0 {
		return nil, ErrEmptyCut
	}
	if p.InitAddress.IsZero() != (len(p.InitCalldata) == 0) {
		return nil, fmt.Errorf("init address and init calldata must be set together")
	}
	tuples := make([]abi.Value, 0, len(p.Entries))
	for _, e := range p.Entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		sels := make([]abi.Value, len(e.Selectors))
		for i, s := range e.Selectors {
			sels[i] = abi.SelectorValue(s)
		}
		tuples = append(tuples, abi.TupleValue(
			abi.AddressValue(e.ModuleAddress),
			abi.Uint64Value(uint64(e.Action)),
			abi.ArrayValue(sels...),
		))
	}
	return abi.EncodeCall(DiamondCutFunction,
		abi.ArrayValue(tuples...),
		abi.AddressValue(p.InitAddress),
		abi.BytesValue(p.InitCalldata),
	)
}

// DecodeDiamondCut parses diamondCut calldata. Entry module names are unknown
// on the wire and left empty.
func DecodeDiamondCut(calldata []byte) (*CutPayload, error) {
	sel := DiamondCutFunction.Selector()
	if len(calldata) < abi.SelectorLength || !bytes.Equal(calldata[:abi.SelectorLength], sel[:]) {
		return nil, fmt.Errorf("not a diamondCut call")
	}
	d := abi.NewDecoder(calldata[abi.SelectorLength:])

	cutStart, err := d.Tail(0, 0)
	if err != nil {
		return nil, fmt.Errorf("cut offset: %w", err)
	}
	n, err := d.Offset(cutStart)
	if err != nil {
		return nil, fmt.Errorf("cut length: %w", err)
	}
	base := cutStart + abi.WordSize
	p := &CutPayload{Entries: make([]CutEntry, 0, n)}
	for i := 0; i < n; i++ {
		tuple, err := d.Tail(base+i*abi.WordSize, base)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		addr, err := d.Address(tuple)
		if err != nil {
			return nil, fmt.Errorf("entry %d address: %w", i, err)
		}
		action, err := d.Uint(tuple + abi.WordSize)
		if err != nil {
			return nil, fmt.Errorf("entry %d action: %w", i, err)
		}
		if !action.IsUint64() || action.Uint64() > uint64(Remove) {
			return nil, fmt.Errorf("entry %d: incorrect action %s", i, action)
		}
		selStart, err := d.Tail(tuple+2*abi.WordSize, tuple)
		if err != nil {
			return nil, fmt.Errorf("entry %d selectors: %w", i, err)
		}
		count, err := d.Offset(selStart)
		if err != nil {
			return nil, fmt.Errorf("entry %d selectors: %w", i, err)
		}
		entry := CutEntry{ModuleAddress: addr, Action: Action(action.Uint64()), Selectors: make([]abi.Selector, 0, count)}
		for j := 0; j < count; j++ {
			s, err := d.Selector(selStart + abi.WordSize*(j+1))
			if err != nil {
				return nil, fmt.Errorf("entry %d selector %d: %w", i, j, err)
			}
			entry.Selectors = append(entry.Selectors, s)
		}
		p.Entries = append(p.Entries, entry)
	}

	if p.InitAddress, err = d.Address(abi.WordSize); err != nil {
		return nil, fmt.Errorf("init address: %w", err)
	}
	initStart, err := d.Tail(2*abi.WordSize, 0)
	if err != nil {
		return nil, fmt.Errorf("init calldata: %w", err)
	}
	if p.InitCalldata, err = d.Bytes(initStart); err != nil {
		return nil, fmt.Errorf("init calldata: %w", err)
	}
	return p, nil
}
