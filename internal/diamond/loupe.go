package diamond

import (
	"context"
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// Caller performs read-only calls against deployed code.
type Caller interface {
	Call(ctx context.Context, to abi.Address, data []byte) ([]byte, error)
}

// Loupe queries a proxy's routing table.
type Loupe struct {
	caller Caller
	proxy  abi.Address
}

// NewLoupe binds a loupe to a proxy address.
func NewLoupe(caller Caller, proxy abi.Address) *Loupe {
	return &Loupe{caller: caller, proxy: proxy}
}

// Proxy returns the bound proxy address.
func (l *Loupe) Proxy() abi.Address { return l.proxy }

// FacetAddresses returns the distinct modules holding at least one selector.
func (l *Loupe) FacetAddresses(ctx context.Context) ([]abi.Address, error) {
	data, err := abi.EncodeCall(FacetAddressesFunction)
	if err != nil {
		return nil, err
	}
	out, err := l.caller.Call(ctx, l.proxy, data)
	if err != nil {
		return nil, fmt.Errorf("facetAddresses: %w", err)
	}
	d := abi.NewDecoder(out)
	start, err := d.Tail(0, 0)
	if err != nil {
		return nil, fmt.Errorf("decode facetAddresses: %w", err)
	}
	addrs, err := d.AddressArray(start)
	if err != nil {
		return nil, fmt.Errorf("decode facetAddresses: %w", err)
	}
	return addrs, nil
}

// FacetAddress returns the module routed for sel; the zero address means none.
func (l *Loupe) FacetAddress(ctx context.Context, sel abi.Selector) (abi.Address, error) {
	data, err := abi.EncodeCall(FacetAddressFunction, abi.SelectorValue(sel))
	if err != nil {
		return abi.Address{}, err
	}
	out, err := l.caller.Call(ctx, l.proxy, data)
	if err != nil {
		return abi.Address{}, fmt.Errorf("facetAddress(%s): %w", sel, err)
	}
	addr, err := abi.NewDecoder(out).Address(0)
	if err != nil {
		return abi.Address{}, fmt.Errorf("decode facetAddress(%s): %w", sel, err)
	}
	return addr, nil
}
