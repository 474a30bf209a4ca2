package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for ledger client failures.
var (
	ErrLedgerUnreachable = errors.New("ledger unreachable")
	ErrSubmitRejected    = errors.New("transaction rejected")
	ErrReceiptTimeout    = errors.New("receipt wait timed out")
)

// Receipt statuses reported by the ledger.
const (
	ReceiptSuccess = "success"
	ReceiptFailure = "failure"
)

// SignedTx is a fully assembled, signed transaction ready for submission.
type SignedTx struct {
	From     string    `json:"from"`
	Contract string    `json:"contract"`
	ChainID  uint64    `json:"chain_id"`
	Nonce    uint64    `json:"nonce"`
	Payload  TxPayload `json:"payload"`
	Sig      string    `json:"sig"`
}

// Receipt is the ledger's confirmation for a submitted transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number"`
}

// LedgerClient is the ledger network contract: nonce acquisition,
// submission, and receipt confirmation.
type LedgerClient interface {
	// PendingNonce returns the next nonce for the account. It must be
	// called immediately before each submission to avoid collisions.
	PendingNonce(ctx context.Context, account string) (uint64, error)
	// Submit sends a signed transaction and returns the network-assigned
	// transaction hash.
	Submit(ctx context.Context, tx SignedTx) (string, error)
	// AwaitReceipt blocks until a receipt is available or timeout elapses.
	// A timeout returns ErrReceiptTimeout; the transaction may still later
	// confirm on-chain out-of-band.
	AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error)
}

const receiptPollInterval = 2 * time.Second

// RPCClient implements LedgerClient over JSON-RPC 2.0.
type RPCClient struct {
	url    string
	client *http.Client
}

// NewRPCClient creates an RPCClient for the given endpoint.
func NewRPCClient(rpcURL string, requestTimeout time.Duration) *RPCClient {
	return &RPCClient{
		url:    rpcURL,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrLedgerUnreachable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s (code %d)", ErrSubmitRejected, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decode rpc result: %w", err)
		}
	}
	return nil
}

func (c *RPCClient) PendingNonce(ctx context.Context, account string) (uint64, error) {
	var nonce uint64
	if err := c.call(ctx, "chain_pendingNonce", []any{account}, &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (c *RPCClient) Submit(ctx context.Context, tx SignedTx) (string, error) {
	var txHash string
	if err := c.call(ctx, "chain_submitTransaction", []any{tx}, &txHash); err != nil {
		return "", err
	}
	if txHash == "" {
		return "", fmt.Errorf("%w: empty tx hash", ErrSubmitRejected)
	}
	return txHash, nil
}

func (c *RPCClient) AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		var receipt *Receipt
		if err := c.call(ctx, "chain_getReceipt", []any{txHash}, &receipt); err != nil {
			return nil, err
		}
		if receipt != nil && receipt.Status != "" {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: tx %s after %s", ErrReceiptTimeout, txHash, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
