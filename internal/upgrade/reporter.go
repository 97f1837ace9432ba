package upgrade

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
	"github.com/R3E-Network/facetctl/internal/logging"
	"github.com/R3E-Network/facetctl/internal/manifest"
)

// DefaultSmokeLimit bounds the smoke calls sampled per module.
const DefaultSmokeLimit = 5

// SmokeCall is a read-only accessor sampled during verification.
type SmokeCall struct {
	Module   string
	Label    string
	Function abi.Function
	Calldata []byte
}

// Verification is the outcome of one Reporter pass.
type Verification struct {
	FacetAddresses []abi.Address          `json:"facetAddresses"`
	Smoke          []manifest.SmokeRecord `json:"smoke,omitempty"`
	Warnings       []string               `json:"warnings"`
}

// Reporter reads the confirmed routing table and samples module state. It
// only issues read-only calls.
type Reporter struct {
	caller     diamond.Caller
	log        *logging.Logger
	smokeLimit int
}

// NewReporter creates a reporter. A non-positive smokeLimit means DefaultSmokeLimit.
func NewReporter(caller diamond.Caller, log *logging.Logger, smokeLimit int) *Reporter {
	if log == nil {
		log = logging.NewDefault("verify")
	}
	if smokeLimit <= 0 {
		smokeLimit = DefaultSmokeLimit
	}
	return &Reporter{caller: caller, log: log, smokeLimit: smokeLimit}
}

// Verify checks the proxy against the cut that was applied. Mismatches are
// returned as warnings; the error is non-nil only when the facet list cannot
// be read at all.
func (r *Reporter) Verify(ctx context.Context, proxy abi.Address, cut []diamond.CutEntry, opts VerifyOptions, smoke []SmokeCall) (*Verification, error) {
	loupe := diamond.NewLoupe(r.caller, proxy)
	facets, err := loupe.FacetAddresses(ctx)
	if err != nil {
		return nil, err
	}
	v := &Verification{FacetAddresses: facets}

	listed := make(map[abi.Address]struct{}, len(facets))
	for _, f := range facets {
		listed[f] = struct{}{}
	}

	cutModules := diamond.DistinctModules(cut)
	expected := opts.ExpectedFacets
	if expected == 0 {
		expected = len(cutModules)
	}
	if expected > 0 && len(facets) != expected {
		v.warn(r.log, fmt.Sprintf("proxy lists %d facets, expected %d", len(facets), expected))
	}
	for _, e := range cut {
		if e.Action == diamond.Remove {
			continue
		}
		if _, ok := listed[e.ModuleAddress]; !ok {
			v.warn(r.log, fmt.Sprintf("module %s (%s) is not listed by the proxy", e.Module, e.ModuleAddress))
		}
	}

	if opts.PointLookups {
		r.lookups(ctx, loupe, cut, v)
	}
	r.smoke(ctx, proxy, smoke, v)
	return v, nil
}

func (r *Reporter) lookups(ctx context.Context, loupe *diamond.Loupe, cut []diamond.CutEntry, v *Verification) {
	for _, e := range cut {
		for _, sel := range e.Selectors {
			got, err := loupe.FacetAddress(ctx, sel)
			if err != nil {
				v.warn(r.log, err.Error())
				continue
			}
			want := e.ModuleAddress
			if got != want {
				v.warn(r.log, fmt.Sprintf("selector %s of %s routes to %s, expected %s", sel, e.Module, got, want))
			}
		}
	}
}

func (r *Reporter) smoke(ctx context.Context, proxy abi.Address, calls []SmokeCall, v *Verification) {
	perModule := make(map[string]int)
	for _, c := range calls {
		if perModule[c.Module] >= r.smokeLimit {
			v.warn(r.log, fmt.Sprintf("smoke call %s.%s skipped: limit of %d per module reached", c.Module, c.Function.Name, r.smokeLimit))
			continue
		}
		perModule[c.Module]++

		rec := manifest.SmokeRecord{Module: c.Module, Label: c.Label, Function: c.Function.Signature()}
		out, err := r.caller.Call(ctx, proxy, c.Calldata)
		if err != nil {
			rec.Error = err.Error()
			v.warn(r.log, fmt.Sprintf("smoke call %s.%s failed: %v", c.Module, c.Function.Name, err))
			v.Smoke = append(v.Smoke, rec)
			continue
		}
		rec.Raw = "0x" + hex.EncodeToString(out)
		if len(c.Function.Outputs) > 0 {
			values, err := abi.Unpack(c.Function.Outputs, out)
			if err != nil {
				rec.Error = fmt.Sprintf("decode: %v", err)
				v.warn(r.log, fmt.Sprintf("smoke call %s.%s returned undecodable data: %v", c.Module, c.Function.Name, err))
			}
			for _, val := range values {
				rec.Values = append(rec.Values, abi.FormatValue(val))
			}
		}
		r.log.WithField("module", c.Module).WithField("function", c.Function.Name).WithField("values", rec.Values).Debug("smoke call")
		v.Smoke = append(v.Smoke, rec)
	}
}

func (v *Verification) warn(log *logging.Logger, msg string) {
	log.Warn(msg)
	v.Warnings = append(v.Warnings, msg)
}
