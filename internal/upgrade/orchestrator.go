package upgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
	"github.com/R3E-Network/facetctl/internal/ledger"
	"github.com/R3E-Network/facetctl/internal/logging"
	"github.com/R3E-Network/facetctl/internal/manifest"
	"github.com/R3E-Network/facetctl/internal/metrics"
)

// DefaultTxTimeout bounds each transactional step when Options.TxTimeout is unset.
const DefaultTxTimeout = 2 * time.Minute

// Options configures an Orchestrator.
type Options struct {
	Logger     *logging.Logger
	TxTimeout  time.Duration
	SmokeLimit int
	Network    string
	// Now and NewRunID are overridable for deterministic manifests.
	Now      func() time.Time
	NewRunID func() string
}

// Orchestrator drives one upgrade plan against a ledger.
type Orchestrator struct {
	ledger ledger.Ledger
	opts   Options
	log    *logging.Logger
}

// Result is everything a run reports. Manifest is nil when the run failed.
type Result struct {
	State      State
	Steps      []StepResult
	Warnings   []string
	Resolution *diamond.Resolution
	Cut        []diamond.CutEntry
	Proxy      abi.Address
	Manifest   *manifest.DeploymentManifest
}

// New creates an orchestrator.
func New(l ledger.Ledger, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.NewDefault("upgrade")
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Orchestrator{ledger: l, opts: opts, log: opts.Logger}
}

type run struct {
	*Orchestrator
	plan   *Plan
	id     string
	state  State
	result *Result
	env    *callEnv

	verification *Verification
}

// Run executes plan. A fatal failure in deploy, resolve or cut returns a
// *StepError alongside a Result in state Failed; later failures only add
// warnings.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan) (*Result, error) {
	r := &run{
		Orchestrator: o,
		plan:         plan,
		id:           o.opts.NewRunID(),
		state:        Idle,
		result:       &Result{State: Idle, Proxy: plan.Proxy},
	}
	log := o.log.WithField("run_id", r.id)
	log.WithField("modules", len(plan.Modules)).WithField("action", plan.Action).Info("upgrade started")

	fatal := []struct {
		step Step
		fn   func(context.Context) error
		next State
	}{
		{StepDeploy, r.deploy, ModulesDeployed},
		{StepResolve, r.resolve, SelectorsResolved},
		{StepCut, r.cut, CutSubmitted},
	}
	for _, s := range fatal {
		if err := r.step(ctx, s.step, s.fn); err != nil {
			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				stepErr = &StepError{Step: s.step, State: r.state, Err: err}
			}
			r.transition(Failed)
			metrics.RecordRun(Failed.String())
			log.WithError(err).WithField("step", s.step).Error("upgrade failed")
			return r.result, stepErr
		}
		r.transition(s.next)
	}

	r.bestEffort(ctx, StepInitialize, r.initialize)
	r.transition(Initialized)
	r.bestEffort(ctx, StepConfigure, r.configure)
	r.transition(Configured)
	r.bestEffort(ctx, StepVerify, r.verify)
	r.transition(Verified)

	if err := r.step(ctx, StepManifest, r.assemble); err != nil {
		r.warn(StepManifest, err.Error())
	}
	if m := r.result.Manifest; m != nil {
		m.Warnings = append([]string{}, r.result.Warnings...)
		m.Steps = stepRecords(r.result.Steps)
	}
	r.transition(Complete)
	metrics.RecordRun(Complete.String())
	log.WithField("warnings", len(r.result.Warnings)).WithField("proxy", r.result.Proxy).Info("upgrade complete")
	return r.result, nil
}

func (r *run) transition(s State) {
	r.log.WithField("run_id", r.id).WithField("from", r.state).WithField("to", s).Debug("state transition")
	r.state = s
	r.result.State = s
}

// errSkipped marks a step with nothing to do.
var errSkipped = errors.New("nothing to do")

func (r *run) step(ctx context.Context, step Step, fn func(context.Context) error) error {
	start := r.opts.Now()
	err := fn(ctx)
	res := StepResult{Step: step, Status: StatusSuccess, Duration: r.opts.Now().Sub(start)}
	switch {
	case errors.Is(err, errSkipped):
		res.Status = StatusSkipped
		err = nil
	case err != nil:
		res.Status = StatusFailure
		res.Reason = err.Error()
	}
	r.result.Steps = append(r.result.Steps, res)
	metrics.RecordStep(string(step), string(res.Status), res.Duration)
	return err
}

// bestEffort runs a step whose failures become warnings. fn reports partial
// failures through r.warn and returns an error only when the whole step failed.
func (r *run) bestEffort(ctx context.Context, step Step, fn func(context.Context) error) {
	before := len(r.result.Warnings)
	err := r.step(ctx, step, fn)
	if err != nil {
		r.warn(step, err.Error())
		return
	}
	if len(r.result.Warnings) > before {
		last := &r.result.Steps[len(r.result.Steps)-1]
		last.Status = StatusFailure
		last.Reason = fmt.Sprintf("%d warning(s)", len(r.result.Warnings)-before)
	}
}

func (r *run) warn(step Step, msg string) {
	r.log.WithField("run_id", r.id).WithField("step", step).Warn(msg)
	r.result.Warnings = append(r.result.Warnings, msg)
	metrics.RecordWarning(string(step))
}

func (r *run) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opts.TxTimeout)
}

// deploy validates the plan, deploys the proxy if needed and every module
// without an address.
func (r *run) deploy(ctx context.Context) error {
	if err := r.plan.Validate(); err != nil {
		return &StepError{Step: StepDeploy, State: r.state, Err: err}
	}

	if r.plan.Proxy.IsZero() {
		name := r.plan.proxyName()
		receipt, err := r.deployOne(ctx, name, r.plan.ProxyBytecode)
		if err != nil {
			return err
		}
		r.result.Proxy = receipt.ContractAddress
	}

	if r.plan.Action == diamond.Remove {
		r.env = newCallEnv(r.ledger.Deployer(), r.result.Proxy, r.plan.Modules)
		if r.plan.Proxy.IsZero() {
			return nil
		}
		return errSkipped
	}

	for _, m := range r.plan.Modules {
		if addr, deployed := m.Descriptor.Address(); deployed {
			r.log.WithField("module", m.Descriptor.Name()).WithField("address", addr).Info("module already deployed")
			continue
		}
		receipt, err := r.deployOne(ctx, m.Descriptor.Name(), m.Bytecode)
		if err != nil {
			return err
		}
		if err := m.Descriptor.SetAddress(receipt.ContractAddress); err != nil {
			return &StepError{Step: StepDeploy, State: r.state, Target: m.Descriptor.Name(), Err: err}
		}
	}
	r.env = newCallEnv(r.ledger.Deployer(), r.result.Proxy, r.plan.Modules)
	return nil
}

func (r *run) deployOne(ctx context.Context, name string, code []byte) (*ledger.Receipt, error) {
	tctx, cancel := r.txContext(ctx)
	defer cancel()
	receipt, err := r.ledger.Deploy(tctx, name, code)
	if err != nil {
		return nil, &StepError{Step: StepDeploy, State: r.state, Target: name, Payload: code, Err: err}
	}
	r.log.WithField("module", name).
		WithField("address", receipt.ContractAddress).
		WithField("tx", receipt.TxHash).
		Info("deployed")
	return receipt, nil
}

// resolve extracts each module's routable selectors and resolves collisions in
// declaration order.
func (r *run) resolve(ctx context.Context) error {
	pv, err := PreviewPlan(r.plan)
	if err != nil {
		if errors.Is(err, diamond.ErrSelectorDefect) {
			r.log.WithError(err).WithField("run_id", r.id).Error("module defect")
		}
		return err
	}
	for _, m := range pv.Modules {
		r.log.WithField("module", m.Module).WithField("selectors", len(m.Functions)).Debug("selectors extracted")
	}

	res := pv.Resolution
	for _, c := range res.Collisions {
		r.warn(StepResolve, c.String())
	}
	for _, name := range res.Absorbed {
		r.log.WithField("module", name).Warn("module contributes no selectors and is left out of the cut")
	}
	metrics.RecordCollisions(len(res.Collisions))
	r.result.Resolution = res
	return nil
}

// cut builds the batch and submits it as one diamondCut transaction.
func (r *run) cut(ctx context.Context) error {
	entries, err := diamond.BuildCut(r.result.Resolution, r.plan.Action)
	if err != nil {
		return err
	}
	payload := diamond.CutPayload{Entries: entries}
	if r.plan.CutInit != nil {
		initCall, err := r.env.prepare(*r.plan.CutInit)
		if err != nil {
			return fmt.Errorf("cut init: %w", err)
		}
		payload.InitCalldata = initCall.Data
		payload.InitAddress, err = r.cutInitAddress()
		if err != nil {
			return err
		}
	}
	calldata, err := diamond.EncodeDiamondCut(payload)
	if err != nil {
		return err
	}

	selectors := 0
	for _, e := range entries {
		selectors += len(e.Selectors)
	}
	metrics.SetRoutedSelectors(selectors)

	tctx, cancel := r.txContext(ctx)
	defer cancel()
	receipt, err := r.ledger.Transact(tctx, r.result.Proxy, calldata)
	if err != nil {
		return &StepError{Step: StepCut, State: r.state, Target: r.result.Proxy.Hex(), Payload: calldata, Err: err}
	}
	r.result.Cut = entries
	r.log.WithField("entries", len(entries)).
		WithField("selectors", selectors).
		WithField("tx", receipt.TxHash).
		Info("diamond cut applied")
	return nil
}

func (r *run) cutInitAddress() (abi.Address, error) {
	c := r.plan.CutInit
	if c.Target != "" {
		return r.env.target(*c)
	}
	addr, ok := r.env.modules[c.Module].Address()
	if !ok {
		return abi.Address{}, fmt.Errorf("cut init module %s is not deployed", c.Module)
	}
	return addr, nil
}

func (r *run) initialize(ctx context.Context) error {
	var calls []Call
	for _, m := range r.plan.Modules {
		if m.Initializer != nil {
			c := *m.Initializer
			if c.Module == "" {
				c.Module = m.Descriptor.Name()
			}
			calls = append(calls, c)
		}
	}
	return r.transactAll(ctx, StepInitialize, "initializer", calls)
}

func (r *run) configure(ctx context.Context) error {
	return r.transactAll(ctx, StepConfigure, "configuration call", r.plan.Configure)
}

// transactAll submits calls one by one; each failure is a warning and later
// calls still run.
func (r *run) transactAll(ctx context.Context, step Step, kind string, calls []Call) error {
	if len(calls) == 0 {
		return errSkipped
	}
	for _, c := range calls {
		p, err := r.env.prepare(c)
		if err != nil {
			r.warn(step, fmt.Sprintf("%s %s could not be prepared: %v", kind, describe(c), err))
			continue
		}
		tctx, cancel := r.txContext(ctx)
		receipt, err := r.ledger.Transact(tctx, p.To, p.Data)
		cancel()
		if err != nil {
			r.warn(step, fmt.Sprintf("%s %s failed: %v", kind, p.name(), err))
			continue
		}
		r.log.WithField("call", p.name()).WithField("tx", receipt.TxHash).Info(kind + " applied")
	}
	return nil
}

func describe(c Call) string {
	if c.Label != "" {
		return c.Label
	}
	if c.Module != "" {
		return c.Module + "." + c.Function
	}
	return c.Function
}

func (r *run) verify(ctx context.Context) error {
	smoke, warnings := smokeCalls(r.env, r.plan.Modules)
	for _, w := range warnings {
		r.warn(StepVerify, w)
	}

	reporter := NewReporter(r.ledger, r.log, r.opts.SmokeLimit)
	v, err := reporter.Verify(ctx, r.result.Proxy, r.result.Cut, r.plan.Verify, smoke)
	if err != nil {
		return fmt.Errorf("verification could not read the routing table: %w", err)
	}
	for _, w := range v.Warnings {
		r.result.Warnings = append(r.result.Warnings, w)
		metrics.RecordWarning(string(StepVerify))
	}
	r.verification = v
	return nil
}

func (r *run) assemble(ctx context.Context) error {
	m := &manifest.DeploymentManifest{
		ProxyAddress: r.result.Proxy,
		Modules:      make(map[string]abi.Address, len(r.plan.Modules)),
		Deployer:     r.ledger.Deployer(),
		TimestampUTC: r.opts.Now().UTC(),
		RunID:        r.id,
		Network:      r.opts.Network,
		Action:       r.plan.Action,
		Cut:          r.result.Cut,
	}
	for _, mod := range r.plan.Modules {
		if addr, ok := mod.Descriptor.Address(); ok {
			m.Modules[mod.Descriptor.Name()] = addr
		}
	}
	if r.verification != nil {
		m.FacetAddressList = r.verification.FacetAddresses
		m.Smoke = r.verification.Smoke
	}
	if err := m.Validate(); err != nil {
		return err
	}
	r.result.Manifest = m
	return nil
}

func stepRecords(steps []StepResult) []manifest.StepRecord {
	out := make([]manifest.StepRecord, len(steps))
	for i, s := range steps {
		out[i] = manifest.StepRecord{
			Step:       string(s.Step),
			Status:     string(s.Status),
			Reason:     s.Reason,
			DurationMS: s.Duration.Milliseconds(),
		}
	}
	return out
}
