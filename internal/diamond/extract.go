package diamond

import (
	"fmt"
	"sort"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// InitFunctionName is the reserved one-time initializer name.
const InitFunctionName = "init"

// ExclusionPolicy lists functions that must never be routed through the proxy.
type ExclusionPolicy struct {
	ExcludedNames       map[string]struct{}
	ExcludePure         bool
	ExcludeInitFunction bool
}

// NewExclusionPolicy builds a policy from a name list.
func NewExclusionPolicy(names []string, excludePure, excludeInit bool) ExclusionPolicy {
	p := ExclusionPolicy{
		ExcludedNames:       make(map[string]struct{}, len(names)),
		ExcludePure:         excludePure,
		ExcludeInitFunction: excludeInit,
	}
	for _, n := range names {
		p.ExcludedNames[n] = struct{}{}
	}
	return p
}

// DefaultExcludedNames are inherited access-control, ownership and storage
// accessor functions that facets commonly expose.
var DefaultExcludedNames = []string{
	// AccessControl
	"hasRole", "getRoleAdmin", "grantRole", "revokeRole", "renounceRole",
	"supportsInterface", "_checkRole", "_setupRole", "_setRoleAdmin",
	"_grantRole", "_revokeRole",
	// Ownable
	"owner", "transferOwnership", "renounceOwnership",
	// storage variables compiled to getters
	"ADMIN_FEE_PERCENT", "LEVEL_INCOME_PERCENT", "MATRIX_INCOME_PERCENT",
	"MAX_PAYOUT_PERCENT", "MAX_PAYOUT_TIME", "POOL_EXTRA_PERCENT",
	"lastPoolDistributionTime", "poolDistributionDays", "totalPoolBalance",
	"totalUsers", "totalVolume", "treasury", "version", "ADMIN_ROLE",
	"DEFAULT_ADMIN_ROLE",
}

// DefaultExclusionPolicy excludes DefaultExcludedNames, pure functions and init.
func DefaultExclusionPolicy() ExclusionPolicy {
	return NewExclusionPolicy(DefaultExcludedNames, true, true)
}

// Names returns the excluded names, sorted.
func (p ExclusionPolicy) Names() []string {
	out := make([]string, 0, len(p.ExcludedNames))
	for n := range p.ExcludedNames {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Excludes reports whether fn is stripped from the routable surface.
func (p ExclusionPolicy) Excludes(fn abi.Function) bool {
	if _, ok := p.ExcludedNames[fn.Name]; ok {
		return true
	}
	if p.ExcludeInitFunction && fn.Name == InitFunctionName {
		return true
	}
	return p.ExcludePure && fn.Mutability == abi.Pure
}

// RoutedFunction is one entry of a module's routable surface.
type RoutedFunction struct {
	Name      string
	Signature string
	Selector  abi.Selector
}

// ExtractSelectors returns the module's routable functions in declaration order.
// Two surviving fragments with the same selector are a module defect.
func ExtractSelectors(d *ModuleDescriptor, policy ExclusionPolicy) ([]RoutedFunction, error) {
	out := make([]RoutedFunction, 0, len(d.functions))
	owner := make(map[abi.Selector]string, len(d.functions))
	names := make(map[string]struct{}, len(d.functions))
	for _, fn := range d.functions {
		if _, dup := names[fn.Name]; dup {
			return nil, fmt.Errorf("module %s: %w: %s", d.name, ErrDuplicateFunction, fn.Name)
		}
		names[fn.Name] = struct{}{}
		if policy.Excludes(fn) {
			continue
		}
		sig := fn.Signature()
		sel := abi.ComputeSelector(sig)
		if prev, dup := owner[sel]; dup {
			return nil, fmt.Errorf("module %s: %w: %s and %s both hash to %s",
				d.name, ErrSelectorDefect, prev, sig, sel)
		}
		owner[sel] = sig
		out = append(out, RoutedFunction{Name: fn.Name, Signature: sig, Selector: sel})
	}
	return out, nil
}

// Selectors projects the selector column of fns.
func Selectors(fns []RoutedFunction) []abi.Selector {
	out := make([]abi.Selector, len(fns))
	for i, f := range fns {
		out[i] = f.Selector
	}
	return out
}
