package upgrade

import (
	"context"
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
	"github.com/R3E-Network/facetctl/internal/logging"
)

// ModuleSelectors is one module's routable surface after exclusions.
type ModuleSelectors struct {
	Module    string
	Functions []diamond.RoutedFunction
}

// Preview is the selector assignment a plan produces, computed without a ledger.
type Preview struct {
	Modules    []ModuleSelectors
	Resolution *diamond.Resolution
}

// PreviewPlan extracts every module's selectors and resolves collisions in
// declaration order.
func PreviewPlan(plan *Plan) (*Preview, error) {
	pv := &Preview{Modules: make([]ModuleSelectors, 0, len(plan.Modules))}
	proposals := make([]diamond.Proposal, 0, len(plan.Modules))
	for _, m := range plan.Modules {
		fns, err := diamond.ExtractSelectors(m.Descriptor, plan.Policy)
		if err != nil {
			return nil, err
		}
		pv.Modules = append(pv.Modules, ModuleSelectors{Module: m.Descriptor.Name(), Functions: fns})
		proposals = append(proposals, diamond.Proposal{Module: m.Descriptor, Selectors: diamond.Selectors(fns)})
	}
	res, err := diamond.ResolveCollisions(proposals, diamond.ResolveOptions{Strict: plan.Strict})
	if err != nil {
		return nil, err
	}
	pv.Resolution = res
	return pv, nil
}

// smokeCalls prepares every module's smoke calls. Calls that cannot be
// prepared are reported as warnings.
func smokeCalls(env *callEnv, modules []Module) ([]SmokeCall, []string) {
	var (
		calls    []SmokeCall
		warnings []string
	)
	for _, m := range modules {
		for _, c := range m.Smoke {
			if c.Module == "" {
				c.Module = m.Descriptor.Name()
			}
			p, err := env.prepare(c)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("smoke call %s could not be prepared: %v", describe(c), err))
				continue
			}
			calls = append(calls, SmokeCall{Module: c.Module, Label: c.Label, Function: p.Function, Calldata: p.Data})
		}
	}
	return calls, warnings
}

// VerifyPlan checks an already upgraded proxy against the cut plan would
// produce. Every module must carry its deployed address, except for Remove
// plans.
func VerifyPlan(ctx context.Context, caller diamond.Caller, deployer, proxy abi.Address, plan *Plan, log *logging.Logger, smokeLimit int) (*Verification, error) {
	if proxy.IsZero() {
		return nil, fmt.Errorf("%w: proxy address required", ErrInvalidPlan)
	}
	pv, err := PreviewPlan(plan)
	if err != nil {
		return nil, err
	}
	cut, err := diamond.BuildCut(pv.Resolution, plan.Action)
	if err != nil {
		return nil, err
	}

	smoke, warnings := smokeCalls(newCallEnv(deployer, proxy, plan.Modules), plan.Modules)
	v, err := NewReporter(caller, log, smokeLimit).Verify(ctx, proxy, cut, plan.Verify, smoke)
	if err != nil {
		return nil, err
	}
	v.Warnings = append(warnings, v.Warnings...)
	return v, nil
}
