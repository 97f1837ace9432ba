package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/chain"
)

// RPCOptions configures an RPC-backed ledger.
type RPCOptions struct {
	// From is the node-managed signer; empty selects the node's first account.
	From         string
	PollInterval time.Duration
	TxTimeout    time.Duration
}

// RPC submits through a JSON-RPC node that holds the signing key.
type RPC struct {
	client *chain.Client
	from   abi.Address
	poll   time.Duration
	wait   time.Duration
}

// NewRPC resolves the signer and returns a ledger bound to it.
func NewRPC(ctx context.Context, client *chain.Client, opts RPCOptions) (*RPC, error) {
	from := opts.From
	if from == "" {
		accounts, err := client.Accounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list node accounts: %w", err)
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("node exposes no unlocked accounts; set a deployer address")
		}
		from = accounts[0]
	}
	addr, err := abi.HexToAddress(from)
	if err != nil {
		return nil, fmt.Errorf("deployer: %w", err)
	}
	return &RPC{client: client, from: addr, poll: opts.PollInterval, wait: opts.TxTimeout}, nil
}

// Deployer implements Ledger.
func (r *RPC) Deployer() abi.Address { return r.from }

// Deploy implements Ledger.
func (r *RPC) Deploy(ctx context.Context, name string, code []byte) (*Receipt, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("deploy %s: empty creation code", name)
	}
	receipt, err := r.send(ctx, chain.TxRequest{From: r.from.Hex(), Data: chain.EncodeBytes(code)})
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", name, err)
	}
	if receipt.ContractAddress.IsZero() {
		return nil, fmt.Errorf("deploy %s: receipt %s has no contract address", name, receipt.TxHash)
	}
	return receipt, nil
}

// Transact implements Ledger.
func (r *RPC) Transact(ctx context.Context, to abi.Address, data []byte) (*Receipt, error) {
	return r.send(ctx, chain.TxRequest{From: r.from.Hex(), To: to.Hex(), Data: chain.EncodeBytes(data)})
}

// Call implements Ledger.
func (r *RPC) Call(ctx context.Context, to abi.Address, data []byte) ([]byte, error) {
	out, err := r.client.EthCall(ctx, chain.TxRequest{From: r.from.Hex(), To: to.Hex(), Data: chain.EncodeBytes(data)})
	if err != nil {
		return nil, asRevert(err)
	}
	return out, nil
}

func (r *RPC) send(ctx context.Context, tx chain.TxRequest) (*Receipt, error) {
	raw, err := r.client.SendTransactionAndWait(ctx, tx, r.poll, r.wait)
	if err != nil {
		if raw != nil && errors.Is(err, chain.ErrReverted) {
			return nil, &RevertError{Reason: "status " + raw.Status + " in tx " + raw.TransactionHash}
		}
		return nil, asRevert(err)
	}
	out := &Receipt{TxHash: raw.TransactionHash}
	if raw.BlockNumber != "" {
		if n, err := chain.ParseQuantity(raw.BlockNumber); err == nil {
			out.BlockNumber = n
		}
	}
	if raw.ContractAddress != "" {
		if out.ContractAddress, err = abi.HexToAddress(raw.ContractAddress); err != nil {
			return nil, fmt.Errorf("receipt contract address: %w", err)
		}
	}
	return out, nil
}

func asRevert(err error) error {
	var rpcErr *chain.RPCError
	if errors.As(err, &rpcErr) {
		if reason := rpcErr.RevertReason(); reason != "" {
			return &RevertError{Reason: reason}
		}
	}
	return err
}
