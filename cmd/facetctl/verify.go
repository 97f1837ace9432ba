package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/config"
	"github.com/R3E-Network/facetctl/internal/upgrade"
)

type verifyOptions struct {
	plan         string
	proxy        string
	pointLookups bool
	smokeLimit   int
}

func newVerifyCmd(a *app) *cobra.Command {
	opts := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an upgraded proxy against the routing a plan describes",
		Long: `Reads facetAddresses (and, with --point-lookups, facetAddress for every
selector) from the proxy and runs the plan's smoke calls. Every module in the
plan must carry its deployed address. Mismatches are printed as warnings; the
command fails only when the proxy cannot be read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.plan, "plan", "", "upgrade plan (YAML)")
	cmd.Flags().StringVar(&opts.proxy, "proxy", "", "diamond proxy address (default: the plan's proxy.address)")
	cmd.Flags().BoolVar(&opts.pointLookups, "point-lookups", false, "query facetAddress for every selector")
	cmd.Flags().IntVar(&opts.smokeLimit, "smoke-limit", upgrade.DefaultSmokeLimit, "smoke calls sampled per module")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (a *app) runVerify(ctx context.Context, opts *verifyOptions) error {
	pf, err := config.LoadPlanFromPath(opts.plan)
	if err != nil {
		return err
	}
	plan, err := pf.Build()
	if err != nil {
		return err
	}
	proxy := plan.Proxy
	if opts.proxy != "" {
		if proxy, err = abi.HexToAddress(opts.proxy); err != nil {
			return err
		}
	}
	if opts.pointLookups {
		plan.Verify.PointLookups = true
	}

	l, err := a.rpcLedger(ctx)
	if err != nil {
		return err
	}
	v, err := upgrade.VerifyPlan(ctx, l, l.Deployer(), proxy, plan, a.log, opts.smokeLimit)
	if err != nil {
		return err
	}

	for _, w := range v.Warnings {
		a.out.Warning("%s", w)
	}
	if len(v.Warnings) == 0 {
		a.out.Success("proxy %s lists %d facets and matches the plan", proxy, len(v.FacetAddresses))
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
