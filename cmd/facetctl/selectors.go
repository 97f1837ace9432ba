package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/facetctl/internal/cli"
	"github.com/R3E-Network/facetctl/internal/config"
	"github.com/R3E-Network/facetctl/internal/upgrade"
)

type selectorsOptions struct {
	plan string
	json bool
}

// selectorEntry is the JSON form of one routed function.
type selectorEntry struct {
	Module    string `json:"module"`
	Function  string `json:"function"`
	Signature string `json:"signature"`
	Selector  string `json:"selector"`
	Routed    bool   `json:"routed"`
}

func newSelectorsCmd(a *app) *cobra.Command {
	opts := &selectorsOptions{}
	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "Print each module's routable selectors and the collisions a cut would drop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSelectors(opts)
		},
	}
	cmd.Flags().StringVar(&opts.plan, "plan", "", "upgrade plan (YAML)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func (a *app) runSelectors(opts *selectorsOptions) error {
	pf, err := config.LoadPlanFromPath(opts.plan)
	if err != nil {
		return err
	}
	plan, err := pf.Build()
	if err != nil {
		return err
	}
	pv, err := upgrade.PreviewPlan(plan)
	if err != nil {
		return err
	}

	dropped := make(map[string]map[string]struct{})
	for _, c := range pv.Resolution.Collisions {
		if dropped[c.Dropped] == nil {
			dropped[c.Dropped] = make(map[string]struct{})
		}
		dropped[c.Dropped][c.Selector.String()] = struct{}{}
	}

	var entries []selectorEntry
	for _, m := range pv.Modules {
		for _, fn := range m.Functions {
			sel := fn.Selector.String()
			_, lost := dropped[m.Module][sel]
			entries = append(entries, selectorEntry{
				Module:    m.Module,
				Function:  fn.Name,
				Signature: fn.Signature,
				Selector:  sel,
				Routed:    !lost,
			})
		}
	}

	if opts.json {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	table := cli.NewPrinter(a.stdout)
	rows := [][]string{{"MODULE", "SELECTOR", "SIGNATURE", ""}}
	for _, e := range entries {
		note := ""
		if !e.Routed {
			note = table.Colorize("dropped", cli.ColorYellow)
		}
		rows = append(rows, []string{e.Module, e.Selector, e.Signature, note})
	}
	table.Table(rows)
	for _, c := range pv.Resolution.Collisions {
		a.out.Warning("%s", c)
	}
	for _, name := range pv.Resolution.Absorbed {
		a.out.Warning("module %s contributes no selectors", name)
	}
	a.out.Info("%d selectors across %d modules, %d collisions", len(entries), len(pv.Modules), len(pv.Resolution.Collisions))
	return nil
}
