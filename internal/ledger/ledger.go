// Package ledger abstracts the transaction execution environment the upgrade
// runs against: deploy code, submit state-changing calls, make read-only calls.
package ledger

import (
	"context"
	"fmt"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// Ledger is the signing and submission primitive supplied to the orchestrator.
// Every state-changing method blocks until the change is confirmed or fails.
type Ledger interface {
	// Deployer is the account that signs deployments and transactions.
	Deployer() abi.Address
	// Deploy creates a contract from creation code and returns its address.
	// name labels the deployment for logs and simulation.
	Deploy(ctx context.Context, name string, code []byte) (*Receipt, error)
	// Transact submits a state-changing call and waits for confirmation.
	Transact(ctx context.Context, to abi.Address, data []byte) (*Receipt, error)
	// Call executes a read-only call.
	Call(ctx context.Context, to abi.Address, data []byte) ([]byte, error)
}

// Receipt confirms an applied transaction.
type Receipt struct {
	TxHash          string
	BlockNumber     uint64
	ContractAddress abi.Address
}

// RevertError reports a transaction or call rejected by contract code.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return fmt.Sprintf("execution reverted: %s", e.Reason)
}
