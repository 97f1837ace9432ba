// Command facetctl deploys diamond modules, computes their selector routing and
// applies it to an EIP-2535 proxy in one diamondCut transaction.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/chain"
	"github.com/R3E-Network/facetctl/internal/cli"
	"github.com/R3E-Network/facetctl/internal/config"
	"github.com/R3E-Network/facetctl/internal/ledger"
	"github.com/R3E-Network/facetctl/internal/logging"
)

// app carries what every subcommand needs once the root pre-run has loaded it.
type app struct {
	envFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
	log *logging.Logger
	// out carries status lines; stdout is reserved for command results.
	out    *cli.Printer
	stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "facetctl",
		Short: "Diamond (EIP-2535) upgrade orchestrator",
		Long: `facetctl deploys facet modules, resolves selector collisions and applies
the resulting routing table to a diamond proxy in a single diamondCut.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file with FACETCTL_* settings")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format override (text, json)")

	root.AddCommand(newCutCmd(a), newSelectorsCmd(a), newVerifyCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	logCfg := cfg.Logging()
	logCfg.Output = cmd.ErrOrStderr()
	log, err := logging.New("facetctl", logCfg)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	a.out = cli.NewPrinter(cmd.ErrOrStderr())
	a.stdout = cmd.OutOrStdout()
	return nil
}

// rpcLedger connects to FACETCTL_RPC_URL and binds the configured signer.
func (a *app) rpcLedger(ctx context.Context) (*ledger.RPC, error) {
	if a.cfg.RPCURL == "" {
		return nil, errors.New("FACETCTL_RPC_URL is not set; use --simulate to run without a node")
	}
	client, err := chain.NewClient(chain.Config{
		RPCURL:            a.cfg.RPCURL,
		ChainID:           a.cfg.ChainID,
		RequestsPerSecond: a.cfg.RPCRate,
	})
	if err != nil {
		return nil, err
	}
	if a.cfg.ChainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		a.log.WithField("chain_id", id).Info("connected")
	}
	return ledger.NewRPC(ctx, client, ledger.RPCOptions{
		From:         a.cfg.Deployer,
		PollInterval: a.cfg.PollInterval,
		TxTimeout:    a.cfg.TxTimeout,
	})
}

// simulatedDeployer is the signer of in-memory runs without FACETCTL_DEPLOYER.
var simulatedDeployer = abi.BytesToAddress([]byte{0xfa, 0xce, 0x7c, 0x71})

func (a *app) deployerAddress() (abi.Address, error) {
	if a.cfg.Deployer == "" {
		return simulatedDeployer, nil
	}
	addr, err := abi.HexToAddress(a.cfg.Deployer)
	if err != nil {
		return abi.Address{}, fmt.Errorf("FACETCTL_DEPLOYER: %w", err)
	}
	return addr, nil
}
