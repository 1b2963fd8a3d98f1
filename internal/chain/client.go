// Package chain talks to the report ledger and the rewards ledger through
// an HTTP chain gateway that holds the single backend signing identity.
// All state-changing calls are signed by that identity, so the ledger
// accepts them in submission order; serialization across concurrent
// callers is the orchestrator's job, not this package's.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sitewarden/sitewarden/pkg/types"
)

const maxResponseSize = 1 << 20 // 1 MB

// Gateway is a client for the chain gateway sidecar.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewGateway creates a gateway client. Pass nil for logger to disable
// logging.
func NewGateway(baseURL string, timeout time.Duration, logger *slog.Logger) (*Gateway, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("chain gateway url is empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type invokeRequest struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// call performs a read-only contract call and decodes the result into out.
func (g *Gateway) call(ctx context.Context, contract, method string, args []any, out any) error {
	resp, err := g.post(ctx, contract, "call", method, args)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return g.failure(resp.StatusCode, method, body)
	}

	var wrapper struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(body).Decode(&wrapper); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(wrapper.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// send submits a signed state-changing transaction and waits for the
// gateway to report acceptance.
func (g *Gateway) send(ctx context.Context, contract, method string, args []any) (types.Receipt, error) {
	resp, err := g.post(ctx, contract, "send", method, args)
	if err != nil {
		return types.Receipt{}, err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseSize)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Receipt{}, g.failure(resp.StatusCode, method, body)
	}

	var receipt types.Receipt
	if err := json.NewDecoder(body).Decode(&receipt); err != nil {
		return types.Receipt{}, fmt.Errorf("decode %s receipt: %w", method, err)
	}
	g.logger.Debug("chain write accepted",
		"contract", contract, "method", method, "tx", receipt.TxHash, "block", receipt.BlockNumber)
	return receipt, nil
}

func (g *Gateway) post(ctx context.Context, contract, kind, method string, args []any) (*http.Response, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(invokeRequest{Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}
	url := fmt.Sprintf("%s/v1/contracts/%s/%s", g.baseURL, contract, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, method, err)
	}
	return resp, nil
}

// failure maps a non-success gateway response: 4xx means the ledger
// definitively refused the operation, anything else is a gateway-side
// fault with unknown chain outcome.
func (g *Gateway) failure(status int, method string, body io.Reader) error {
	var er errorResponse
	_ = json.NewDecoder(body).Decode(&er)
	reason := er.Error
	if reason == "" {
		reason = http.StatusText(status)
	}
	if status >= 400 && status < 500 {
		return &RejectedError{Method: method, Reason: reason}
	}
	return fmt.Errorf("%w: %s: gateway responded %d: %s", ErrUnreachable, method, status, reason)
}
