package diamond

import (
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// Proposal is the selector set one module offers, in its own order.
type Proposal struct {
	Module    *ModuleDescriptor
	Selectors []abi.Selector
}

// Assignment is the non-overlapping share of selectors granted to a module.
type Assignment struct {
	Module    *ModuleDescriptor
	Selectors []abi.Selector
}

// Collision records a selector dropped from a later module.
type Collision struct {
	Selector abi.Selector
	Owner    string
	Dropped  string
}

func (c Collision) String() string {
	return fmt.Sprintf("selector %s offered by %s is already owned by %s; dropped from %s",
		c.Selector, c.Dropped, c.Owner, c.Dropped)
}

// Resolution is the collision resolver output. Assignments keep module
// declaration order and omit modules whose selectors were fully absorbed.
type Resolution struct {
	Assignments []Assignment
	Collisions  []Collision
	// Absorbed names modules that contribute no selectors.
	Absorbed []string
}

// ResolveOptions tunes collision handling.
type ResolveOptions struct {
	// Strict fails on the first cross-module collision instead of dropping it.
	Strict bool
}

// ResolveCollisions assigns each selector to the first module that proposes it.
func ResolveCollisions(proposals []Proposal, opts ResolveOptions) (*Resolution, error) {
	owner := make(map[abi.Selector]string)
	res := &Resolution{}
	for _, p := range proposals {
		name := p.Module.Name()
		kept := make([]abi.Selector, 0, len(p.Selectors))
		for _, sel := range p.Selectors {
			prev, taken := owner[sel]
			if taken && prev == name {
				return nil, fmt.Errorf("module %s: %w: %s proposed twice", name, ErrSelectorDefect, sel)
			}
			if taken {
				c := Collision{Selector: sel, Owner: prev, Dropped: name}
				if opts.Strict {
					return nil, fmt.Errorf("%w: %s", ErrSelectorCollision, c)
				}
				res.Collisions = append(res.Collisions, c)
				continue
			}
			owner[sel] = name
			kept = append(kept, sel)
		}
		if len(kept) == 0 {
			res.Absorbed = append(res.Absorbed, name)
			continue
		}
		res.Assignments = append(res.Assignments, Assignment{Module: p.Module, Selectors: kept})
	}
	return res, nil
}
