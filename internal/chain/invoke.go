package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Contract Invocation Methods
// =============================================================================

// EthCall executes a read-only call against the latest block.
func (c *Client) EthCall(ctx context.Context, msg TxRequest) ([]byte, error) {
	result, err := c.Call(ctx, "eth_call", []interface{}{msg, "latest"})
	if err != nil {
		return nil, err
	}

	var out string
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	return DecodeBytes(out)
}

// SendTransaction submits a transaction signed by the node's unlocked account
// and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	result, err := c.Call(ctx, "eth_sendTransaction", []interface{}{tx})
	if err != nil {
		return "", err
	}

	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", fmt.Errorf("unmarshal tx hash: %w", err)
	}
	return hash, nil
}

// WaitForReceipt polls for a transaction receipt until it is available or ctx is done.
// A missing receipt is treated as pending and retried until the deadline expires.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string, pollInterval time.Duration) (*Receipt, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash, ctx.Err())
		case <-ticker.C:
			receipt, err := c.GetTransactionReceipt(ctx, txHash)
			if err != nil {
				if errors.Is(err, ErrReceiptNotFound) {
					continue
				}
				return nil, err
			}
			return receipt, nil
		}
	}
}

// DefaultTxWaitTimeout is the default timeout for waiting for transaction execution.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling transaction status.
const DefaultPollInterval = time.Second

// SendTransactionAndWait broadcasts a transaction and waits for its receipt.
// A mined-but-failed transaction returns the receipt together with ErrReverted.
// If waitTimeout is 0, DefaultTxWaitTimeout is used.
func (c *Client) SendTransactionAndWait(ctx context.Context, tx TxRequest, pollInterval, waitTimeout time.Duration) (*Receipt, error) {
	txHash, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	if waitTimeout <= 0 {
		waitTimeout = DefaultTxWaitTimeout
	}

	wctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	receipt, err := c.WaitForReceipt(wctx, txHash, pollInterval)
	if err != nil {
		return nil, err
	}
	if !receipt.Succeeded() {
		return receipt, fmt.Errorf("%w: %s (status %s)", ErrReverted, txHash, receipt.Status)
	}
	return receipt, nil
}
