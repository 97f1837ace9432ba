package diamond

import (
	"errors"
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// ErrInvalidCut wraps every reason a batch is rejected by RoutingTable.Apply.
var ErrInvalidCut = errors.New("invalid diamond cut")

// RoutingTable maps selectors to module addresses. Batches apply atomically.
// The facet list keeps first-insertion order so repeated reads are stable.
type RoutingTable struct {
	routes map[abi.Selector]abi.Address
	facets []abi.Address
}

// NewRoutingTable returns an empty table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{routes: make(map[abi.Selector]abi.Address)}
}

// Clone returns an independent copy of t.
func (t *RoutingTable) Clone() *RoutingTable {
	c := &RoutingTable{routes: make(map[abi.Selector]abi.Address, len(t.routes))}
	for k, v := range t.routes {
		c.routes[k] = v
	}
	c.facets = append([]abi.Address(nil), t.facets...)
	return c
}

// Lookup returns the module routed for sel.
func (t *RoutingTable) Lookup(sel abi.Selector) (abi.Address, bool) {
	addr, ok := t.routes[sel]
	return addr, ok
}

// Len returns the number of routed selectors.
func (t *RoutingTable) Len() int { return len(t.routes) }

// FacetAddresses returns the distinct modules holding at least one selector.
func (t *RoutingTable) FacetAddresses() []abi.Address {
	return append([]abi.Address(nil), t.facets...)
}

// Apply validates every entry against a working copy and commits only when the
// whole batch is valid. On error the table is unchanged.
func (t *RoutingTable) Apply(batch []CutEntry) error {
	next := make(map[abi.Selector]abi.Address, len(t.routes))
	for k, v := range t.routes {
		next[k] = v
	}
	for i, e := range batch {
		if len(e.Selectors) == 0 {
			return fmt.Errorf("%w: entry %d: %w", ErrInvalidCut, i, ErrEmptyCutEntry)
		}
		for _, sel := range e.Selectors {
			cur, assigned := next[sel]
			switch e.Action {
			case Add:
				if e.ModuleAddress.IsZero() {
					return fmt.Errorf("%w: entry %d: add facet can't be address(0)", ErrInvalidCut, i)
				}
				if assigned {
					return fmt.Errorf("%w: entry %d: can't add function that already exists: %s", ErrInvalidCut, i, sel)
				}
				next[sel] = e.ModuleAddress
			case Replace:
				if e.ModuleAddress.IsZero() {
					return fmt.Errorf("%w: entry %d: replace facet can't be address(0)", ErrInvalidCut, i)
				}
				if !assigned {
					return fmt.Errorf("%w: entry %d: can't replace function that doesn't exist: %s", ErrInvalidCut, i, sel)
				}
				if cur == e.ModuleAddress {
					return fmt.Errorf("%w: entry %d: can't replace function with same function: %s", ErrInvalidCut, i, sel)
				}
				next[sel] = e.ModuleAddress
			case Remove:
				if !e.ModuleAddress.IsZero() {
					return fmt.Errorf("%w: entry %d: remove facet address must be address(0)", ErrInvalidCut, i)
				}
				if !assigned {
					return fmt.Errorf("%w: entry %d: can't remove function that doesn't exist: %s", ErrInvalidCut, i, sel)
				}
				delete(next, sel)
			default:
				return fmt.Errorf("%w: entry %d: incorrect action %d", ErrInvalidCut, i, e.Action)
			}
		}
	}

	t.routes = next
	t.facets = reconcileFacets(t.facets, batch, next)
	return nil
}

func reconcileFacets(prev []abi.Address, batch []CutEntry, routes map[abi.Selector]abi.Address) []abi.Address {
	live := make(map[abi.Address]struct{}, len(prev))
	for _, a := range routes {
		live[a] = struct{}{}
	}
	out := make([]abi.Address, 0, len(live))
	listed := make(map[abi.Address]struct{}, len(live))
	for _, a := range prev {
		if _, ok := live[a]; ok {
			out = append(out, a)
			listed[a] = struct{}{}
		}
	}
	for _, e := range batch {
		if _, ok := live[e.ModuleAddress]; !ok {
			continue
		}
		if _, ok := listed[e.ModuleAddress]; ok {
			continue
		}
		out = append(out, e.ModuleAddress)
		listed[e.ModuleAddress] = struct{}{}
	}
	return out
}
