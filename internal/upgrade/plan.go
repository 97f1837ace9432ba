package upgrade

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
)

// DefaultProxyName labels the proxy deployment when a plan deploys one.
const DefaultProxyName = "Diamond"

// Plan is the declarative description of one upgrade run.
type Plan struct {
	// Proxy is the existing diamond. When zero, ProxyBytecode is deployed first.
	Proxy         abi.Address
	ProxyName     string
	ProxyBytecode []byte

	Action  diamond.Action
	Policy  diamond.ExclusionPolicy
	Strict  bool
	Modules []Module

	// CutInit is executed inside the diamondCut transaction. Its Module
	// supplies the init address.
	CutInit   *Call
	Configure []Call
	Verify    VerifyOptions
}

// Module is one facet taking part in the run, in declaration order.
type Module struct {
	Descriptor *diamond.ModuleDescriptor
	// Bytecode is the creation code; unused when the descriptor already
	// carries an address.
	Bytecode    []byte
	Initializer *Call
	Smoke       []Call
}

// Call is a function invocation whose arguments are resolved at run time.
// Arguments may reference $deployer, $proxy and $module:<Name>.
type Call struct {
	Label string
	// Module names the descriptor that declares Function. Empty requires a
	// full signature in Function.
	Module   string
	Function string
	Args     []string
	// Target overrides the call destination; empty means the proxy.
	Target string
}

// VerifyOptions tunes the post-cut checks.
type VerifyOptions struct {
	// PointLookups queries facetAddress for every cut selector.
	PointLookups bool
	// ExpectedFacets overrides the expected facet count; zero means the number
	// of distinct modules in the cut.
	ExpectedFacets int
}

// ErrInvalidPlan wraps every plan validation failure.
var ErrInvalidPlan = errors.New("invalid upgrade plan")

// Validate checks the plan before any transaction is sent.
func (p *Plan) Validate() error {
	if len(p.Modules) == 0 {
		return fmt.Errorf("%w: no modules declared", ErrInvalidPlan)
	}
	if p.Proxy.IsZero() && len(p.ProxyBytecode) == 0 {
		return fmt.Errorf("%w: neither proxy address nor proxy bytecode given", ErrInvalidPlan)
	}
	if p.Action > diamond.Remove {
		return fmt.Errorf("%w: unknown action %d", ErrInvalidPlan, p.Action)
	}
	seen := make(map[string]struct{}, len(p.Modules))
	for i, m := range p.Modules {
		if m.Descriptor == nil {
			return fmt.Errorf("%w: module %d has no descriptor", ErrInvalidPlan, i)
		}
		name := m.Descriptor.Name()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: module %s declared twice", ErrInvalidPlan, name)
		}
		seen[name] = struct{}{}
		if _, deployed := m.Descriptor.Address(); !deployed && p.Action != diamond.Remove && len(m.Bytecode) == 0 {
			return fmt.Errorf("%w: module %s has neither address nor bytecode", ErrInvalidPlan, name)
		}
	}
	if p.CutInit != nil {
		if _, ok := seen[p.CutInit.Module]; !ok && p.CutInit.Target == "" {
			return fmt.Errorf("%w: cut init module %q is not declared", ErrInvalidPlan, p.CutInit.Module)
		}
	}
	return nil
}

func (p *Plan) proxyName() string {
	if p.ProxyName != "" {
		return p.ProxyName
	}
	return DefaultProxyName
}

// callEnv resolves placeholders and function references for Call values.
type callEnv struct {
	deployer abi.Address
	proxy    abi.Address
	modules  map[string]*diamond.ModuleDescriptor
}

func newCallEnv(deployer, proxy abi.Address, modules []Module) *callEnv {
	env := &callEnv{deployer: deployer, proxy: proxy, modules: make(map[string]*diamond.ModuleDescriptor, len(modules))}
	for _, m := range modules {
		env.modules[m.Descriptor.Name()] = m.Descriptor
	}
	return env
}

var (
	modulePlaceholder  = regexp.MustCompile(`\$module:([A-Za-z_][A-Za-z0-9_]*)`)
	contextPlaceholder = regexp.MustCompile(`\$(deployer|proxy)\b`)
)

// expand substitutes placeholders in raw.
func (e *callEnv) expand(raw string) (string, error) {
	var missing error
	out := modulePlaceholder.ReplaceAllStringFunc(raw, func(m string) string {
		name := modulePlaceholder.FindStringSubmatch(m)[1]
		d, ok := e.modules[name]
		if !ok {
			missing = fmt.Errorf("unknown module %q in %s", name, m)
			return m
		}
		addr, deployed := d.Address()
		if !deployed {
			missing = fmt.Errorf("module %q referenced before deployment", name)
			return m
		}
		return addr.Hex()
	})
	if missing != nil {
		return "", missing
	}
	out = contextPlaceholder.ReplaceAllStringFunc(out, func(m string) string {
		if m == "$deployer" {
			return e.deployer.Hex()
		}
		return e.proxy.Hex()
	})
	return out, nil
}

// function resolves c.Function to a fragment, by name within c.Module or by
// full signature.
func (e *callEnv) function(c Call) (abi.Function, error) {
	if c.Module != "" {
		d, ok := e.modules[c.Module]
		if !ok {
			return abi.Function{}, fmt.Errorf("unknown module %q", c.Module)
		}
		name := c.Function
		if strings.Contains(name, "(") {
			parsed, err := abi.ParseSignature(name)
			if err != nil {
				return abi.Function{}, err
			}
			if fn, ok := d.Function(parsed.Name); ok && fn.Signature() == parsed.Signature() {
				return fn, nil
			}
			return parsed, nil
		}
		fn, ok := d.Function(name)
		if !ok {
			return abi.Function{}, fmt.Errorf("module %s has no function %q", c.Module, name)
		}
		return fn, nil
	}
	if !strings.Contains(c.Function, "(") {
		return abi.Function{}, fmt.Errorf("function %q needs a module or a full signature", c.Function)
	}
	return abi.ParseSignature(c.Function)
}

// target resolves the call destination.
func (e *callEnv) target(c Call) (abi.Address, error) {
	if c.Target == "" {
		return e.proxy, nil
	}
	raw, err := e.expand(c.Target)
	if err != nil {
		return abi.Address{}, err
	}
	return abi.HexToAddress(raw)
}

// preparedCall is a Call resolved to concrete bytes.
type preparedCall struct {
	Call     Call
	Function abi.Function
	To       abi.Address
	Data     []byte
}

func (p preparedCall) name() string {
	if p.Call.Label != "" {
		return p.Call.Label
	}
	if p.Call.Module != "" {
		return p.Call.Module + "." + p.Function.Name
	}
	return p.Function.Name
}

// prepare resolves function, arguments and destination.
func (e *callEnv) prepare(c Call) (*preparedCall, error) {
	fn, err := e.function(c)
	if err != nil {
		return nil, err
	}
	if len(c.Args) != len(fn.Inputs) {
		return nil, fmt.Errorf("%s: want %d arguments, got %d", fn.Signature(), len(fn.Inputs), len(c.Args))
	}
	values := make([]abi.Value, len(c.Args))
	for i, raw := range c.Args {
		expanded, err := e.expand(raw)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", fn.Signature(), i, err)
		}
		if values[i], err = abi.ParseValue(fn.Inputs[i], expanded); err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", fn.Signature(), i, err)
		}
	}
	data, err := abi.EncodeCall(fn, values...)
	if err != nil {
		return nil, err
	}
	to, err := e.target(c)
	if err != nil {
		return nil, fmt.Errorf("%s target: %w", fn.Signature(), err)
	}
	return &preparedCall{Call: c, Function: fn, To: to, Data: data}, nil
}
