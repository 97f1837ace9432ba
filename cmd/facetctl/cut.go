package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/facetctl/internal/cli"
	"github.com/R3E-Network/facetctl/internal/config"
	"github.com/R3E-Network/facetctl/internal/ledger"
	"github.com/R3E-Network/facetctl/internal/manifest"
	"github.com/R3E-Network/facetctl/internal/metrics"
	"github.com/R3E-Network/facetctl/internal/upgrade"
)

type cutOptions struct {
	plan       string
	simulate   bool
	out        string
	format     string
	smokeLimit int
}

func newCutCmd(a *app) *cobra.Command {
	opts := &cutOptions{}
	cmd := &cobra.Command{
		Use:   "cut",
		Short: "Deploy modules and apply the diamond cut described by a plan",
		Long: `Runs the full upgrade: deploy the proxy and modules, resolve selectors,
submit one diamondCut, then initialize, configure and verify. Only failures
before the cut is confirmed abort the run; later failures are reported as
warnings in the manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCut(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.plan, "plan", "", "upgrade plan (YAML)")
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "run against an in-memory ledger instead of FACETCTL_RPC_URL")
	cmd.Flags().StringVar(&opts.out, "out", "", "write the deployment manifest here (default stdout)")
	cmd.Flags().StringVar(&opts.format, "format", "", "manifest format: json or yaml (default from --out extension)")
	cmd.Flags().IntVar(&opts.smokeLimit, "smoke-limit", upgrade.DefaultSmokeLimit, "smoke calls sampled per module")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (a *app) runCut(ctx context.Context, opts *cutOptions) error {
	format, err := manifestFormat(opts)
	if err != nil {
		return err
	}
	pf, err := config.LoadPlanFromPath(opts.plan)
	if err != nil {
		return err
	}
	plan, err := pf.Build()
	if err != nil {
		return err
	}

	network := pf.Network
	if network == "" {
		network = a.cfg.Network
	}

	var l ledger.Ledger
	if opts.simulate {
		mem, err := a.simulation(plan)
		if err != nil {
			return err
		}
		if network == "" {
			network = "simulated"
		}
		l = mem
	} else {
		rpc, err := a.rpcLedger(ctx)
		if err != nil {
			return err
		}
		l = rpc
	}

	orch := upgrade.New(l, upgrade.Options{
		Logger:     a.log,
		TxTimeout:  a.cfg.TxTimeout,
		SmokeLimit: opts.smokeLimit,
		Network:    network,
	})
	res, runErr := orch.Run(ctx, plan)
	a.report(res)
	a.pushMetrics(ctx, network)
	if runErr != nil {
		a.out.Error("upgrade failed: %v", runErr)
		return runErr
	}

	if res.Manifest == nil {
		return errors.New("upgrade completed without a manifest; see warnings")
	}
	if opts.out == "" {
		return res.Manifest.Encode(a.stdout, format)
	}
	if err := res.Manifest.Save(opts.out, format); err != nil {
		return err
	}
	a.out.Success("manifest written to %s", opts.out)
	return nil
}

// simulation prepares an in-memory ledger for plan. A plan that targets an
// existing proxy, or has no proxy bytecode, gets a fresh empty diamond.
func (a *app) simulation(plan *upgrade.Plan) (*ledger.Memory, error) {
	deployer, err := a.deployerAddress()
	if err != nil {
		return nil, err
	}
	mem := ledger.NewMemory(deployer)
	name := plan.ProxyName
	if name == "" {
		name = upgrade.DefaultProxyName
	}
	mem.RegisterDiamond(name)
	if !plan.Proxy.IsZero() || len(plan.ProxyBytecode) == 0 {
		plan.Proxy = mem.NewDiamond(name)
		a.out.Info("simulating against a fresh diamond at %s", plan.Proxy)
	}
	return mem, nil
}

func (a *app) report(res *upgrade.Result) {
	if res == nil {
		return
	}
	a.out.Heading("Steps")
	rows := make([][]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		status := string(s.Status)
		switch s.Status {
		case upgrade.StatusSuccess:
			status = a.out.Colorize(status, cli.ColorGreen)
		case upgrade.StatusFailure:
			status = a.out.Colorize(status, cli.ColorRed)
		case upgrade.StatusSkipped:
			status = a.out.Colorize(status, cli.ColorCyan)
		}
		rows = append(rows, []string{string(s.Step), status, cli.FormatDuration(s.Duration), s.Reason})
	}
	a.out.Table(rows)
	for _, w := range res.Warnings {
		a.out.Warning("%s", w)
	}
	if res.State == upgrade.Complete {
		a.out.Success("proxy %s upgraded (%d cut entries, %d warnings)", res.Proxy, len(res.Cut), len(res.Warnings))
	}
}

func (a *app) pushMetrics(ctx context.Context, network string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	grouping := map[string]string{}
	if network != "" {
		grouping["network"] = network
	}
	if err := metrics.Push(ctx, a.cfg.PushgatewayURL, "facetctl", grouping); err != nil {
		a.log.WithError(err).Warn("metrics push failed")
	}
}

func manifestFormat(opts *cutOptions) (manifest.Format, error) {
	if opts.format != "" {
		return manifest.ParseFormat(opts.format)
	}
	if opts.out != "" {
		return manifest.FormatForPath(opts.out), nil
	}
	return manifest.FormatJSON, nil
}
