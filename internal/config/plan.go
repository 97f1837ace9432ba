package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
	"github.com/R3E-Network/facetctl/internal/upgrade"
)

// PlanFile is the YAML form of an upgrade plan.
type PlanFile struct {
	Network    string          `yaml:"network"`
	Action     string          `yaml:"action"`
	Strict     bool            `yaml:"strict"`
	Proxy      ProxyConfig     `yaml:"proxy"`
	Exclusions ExclusionConfig `yaml:"exclusions"`
	Modules    []ModuleConfig  `yaml:"modules"`
	CutInit    *CallConfig     `yaml:"cutInit"`
	Configure  []CallConfig    `yaml:"configure"`
	Verify     VerifyConfig    `yaml:"verify"`

	// dir resolves relative artifact paths.
	dir string
}

// ProxyConfig names an existing diamond or the artifact to deploy one from.
type ProxyConfig struct {
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`
	Artifact string `yaml:"artifact"`
	Bytecode string `yaml:"bytecode"`
}

// ExclusionConfig selects the functions never routed through the proxy.
// Without any field set the default policy applies.
type ExclusionConfig struct {
	Default     *bool    `yaml:"default"`
	Names       []string `yaml:"names"`
	ExcludePure *bool    `yaml:"excludePure"`
	ExcludeInit *bool    `yaml:"excludeInit"`
}

// ModuleConfig is one facet. Its interface comes from Artifact, from inline
// Functions, or both (inline fragments are appended).
type ModuleConfig struct {
	Name        string       `yaml:"name"`
	Artifact    string       `yaml:"artifact"`
	Functions   []string     `yaml:"functions"`
	Address     string       `yaml:"address"`
	Bytecode    string       `yaml:"bytecode"`
	Initializer *CallConfig  `yaml:"initializer"`
	Smoke       []CallConfig `yaml:"smoke"`
}

// CallConfig is a deferred function call.
type CallConfig struct {
	Label    string   `yaml:"label"`
	Module   string   `yaml:"module"`
	Function string   `yaml:"function"`
	Args     []string `yaml:"args"`
	Target   string   `yaml:"target"`
}

// VerifyConfig tunes the verification step.
type VerifyConfig struct {
	PointLookups   bool `yaml:"pointLookups"`
	ExpectedFacets int  `yaml:"expectedFacets"`
}

// LoadPlanFromPath reads and parses a plan file. Relative artifact paths are
// resolved against the file's directory.
func LoadPlanFromPath(path string) (*PlanFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	pf, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}
	pf.dir = filepath.Dir(path)
	return pf, nil
}

// ParsePlan parses plan YAML. Relative artifact paths resolve against the
// working directory.
func ParsePlan(data []byte) (*PlanFile, error) {
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	if len(pf.Modules) == 0 {
		return nil, fmt.Errorf("plan: at least one module is required")
	}
	seen := make(map[string]struct{}, len(pf.Modules))
	for i, m := range pf.Modules {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("plan: module %d: name is required", i)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("plan: module %s declared twice", m.Name)
		}
		seen[m.Name] = struct{}{}
		if m.Artifact == "" && len(m.Functions) == 0 {
			return nil, fmt.Errorf("plan: module %s: artifact or functions is required", m.Name)
		}
	}
	return &pf, nil
}

// Policy returns the exclusion policy the plan selects. Unless default is
// false, listed names extend DefaultExcludedNames.
func (pf *PlanFile) Policy() diamond.ExclusionPolicy {
	e := pf.Exclusions
	if !boolOr(e.Default, true) {
		return diamond.NewExclusionPolicy(e.Names, boolOr(e.ExcludePure, true), boolOr(e.ExcludeInit, true))
	}
	policy := diamond.DefaultExclusionPolicy()
	for _, n := range e.Names {
		policy.ExcludedNames[n] = struct{}{}
	}
	policy.ExcludePure = boolOr(e.ExcludePure, policy.ExcludePure)
	policy.ExcludeInitFunction = boolOr(e.ExcludeInit, policy.ExcludeInitFunction)
	return policy
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Build loads artifacts and produces the orchestrator plan. Each call returns
// fresh descriptors, so a built plan is good for one run.
func (pf *PlanFile) Build() (*upgrade.Plan, error) {
	action, err := diamond.ParseAction(pf.Action)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	plan := &upgrade.Plan{
		ProxyName: pf.Proxy.Name,
		Action:    action,
		Policy:    pf.Policy(),
		Strict:    pf.Strict,
		Verify: upgrade.VerifyOptions{
			PointLookups:   pf.Verify.PointLookups,
			ExpectedFacets: pf.Verify.ExpectedFacets,
		},
	}

	if pf.Proxy.Address != "" {
		if plan.Proxy, err = abi.HexToAddress(pf.Proxy.Address); err != nil {
			return nil, fmt.Errorf("plan: proxy address: %w", err)
		}
	}
	if plan.ProxyBytecode, err = pf.bytecode(pf.Proxy.Artifact, pf.Proxy.Bytecode); err != nil {
		return nil, fmt.Errorf("plan: proxy: %w", err)
	}

	for _, mc := range pf.Modules {
		m, err := pf.buildModule(mc)
		if err != nil {
			return nil, fmt.Errorf("plan: module %s: %w", mc.Name, err)
		}
		plan.Modules = append(plan.Modules, m)
	}

	if pf.CutInit != nil {
		c := pf.CutInit.call()
		plan.CutInit = &c
	}
	for _, cc := range pf.Configure {
		plan.Configure = append(plan.Configure, cc.call())
	}
	return plan, nil
}

func (pf *PlanFile) buildModule(mc ModuleConfig) (upgrade.Module, error) {
	var (
		fns  []abi.Function
		code []byte
	)
	if mc.Artifact != "" {
		art, err := abi.LoadArtifact(pf.resolve(mc.Artifact))
		if err != nil {
			return upgrade.Module{}, err
		}
		fns = append(fns, art.Functions...)
		code = art.Bytecode
	}
	for _, sig := range mc.Functions {
		fn, err := abi.ParseSignature(sig)
		if err != nil {
			return upgrade.Module{}, err
		}
		fns = append(fns, fn)
	}
	if mc.Bytecode != "" {
		var err error
		if code, err = decodeHex(mc.Bytecode); err != nil {
			return upgrade.Module{}, fmt.Errorf("bytecode: %w", err)
		}
	}

	d, err := diamond.NewModuleDescriptor(mc.Name, fns)
	if err != nil {
		return upgrade.Module{}, err
	}
	if mc.Address != "" {
		addr, err := abi.HexToAddress(mc.Address)
		if err != nil {
			return upgrade.Module{}, fmt.Errorf("address: %w", err)
		}
		if err := d.SetAddress(addr); err != nil {
			return upgrade.Module{}, err
		}
	}

	m := upgrade.Module{Descriptor: d, Bytecode: code}
	if mc.Initializer != nil {
		c := mc.Initializer.call()
		m.Initializer = &c
	}
	for _, sc := range mc.Smoke {
		m.Smoke = append(m.Smoke, sc.call())
	}
	return m, nil
}

func (pf *PlanFile) bytecode(artifact, inline string) ([]byte, error) {
	if inline != "" {
		return decodeHex(inline)
	}
	if artifact == "" {
		return nil, nil
	}
	art, err := abi.LoadArtifact(pf.resolve(artifact))
	if err != nil {
		return nil, err
	}
	return art.Bytecode, nil
}

func (pf *PlanFile) resolve(path string) string {
	if filepath.IsAbs(path) || pf.dir == "" {
		return path
	}
	return filepath.Join(pf.dir, path)
}

func (c CallConfig) call() upgrade.Call {
	return upgrade.Call{
		Label:    c.Label,
		Module:   c.Module,
		Function: c.Function,
		Args:     append([]string(nil), c.Args...),
		Target:   c.Target,
	}
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}
