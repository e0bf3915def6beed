// Package suirpc is a small Sui JSON-RPC client covering what SuiGuard
// reads from the chain: package modules, object types, checkpoints and
// published packages.
package suirpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/suiguard/suiguard/internal/circuitbreaker"
	"github.com/suiguard/suiguard/internal/httpclient"
	"github.com/suiguard/suiguard/internal/retry"
)

var (
	ErrCircuitOpen = errors.New("suirpc: circuit open")
	ErrNotFound    = errors.New("suirpc: object not found")
	ErrMalformed   = errors.New("suirpc: malformed response")
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Method  string
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("suirpc: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

const breakerKey = "rpc"

// Config configures the client.
type Config struct {
	URL     string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client calls one Sui fullnode.
type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
	nextID  atomic.Int64
}

// New creates a client. breaker may be nil.
func New(cfg Config, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Client{
		cfg:     cfg,
		http:    httpclient.New(logger, httpclient.Options{Timeout: cfg.Timeout}),
		breaker: breaker,
		logger:  logger.With("component", "suirpc"),
	}
}

// URL returns the node endpoint.
func (c *Client) URL() string { return c.cfg.URL }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC request and decodes result into out.
//
// Transport failures and non-200 statuses are retried and count against
// the breaker. A JSON-RPC error is an answer, not an outage: it is
// returned immediately and does not trip the breaker.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	body := request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}

	var result json.RawMessage
	var rpcErr *RPCError
	attempt := func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(c.cfg.URL)
		if err != nil {
			return fmt.Errorf("suirpc: %s: %w", method, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("suirpc: %s: status %d", method, resp.StatusCode())
		}
		var r response
		if err := json.Unmarshal(resp.Body(), &r); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, method, err)
		}
		if r.Error != nil {
			r.Error.Method = method
			rpcErr = r.Error
			return nil
		}
		result = r.Result
		return nil
	}

	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		var err error
		if c.breaker != nil {
			err = c.breaker.Execute(ctx, breakerKey, attempt)
		} else {
			err = attempt(ctx)
		}
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			return retry.Permanent(ErrCircuitOpen)
		case errors.Is(err, ErrMalformed), ctx.Err() != nil:
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		c.logger.Warn("rpc call failed", "method", method, "error", err)
		return err
	}
	if rpcErr != nil {
		return rpcErr
	}
	if len(result) == 0 || string(result) == "null" {
		return fmt.Errorf("%w: %s: empty result", ErrMalformed, method)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, method, err)
	}
	return nil
}

// NormalizedModules fetches every module of a package.
func (c *Client) NormalizedModules(ctx context.Context, packageID string) (map[string]NormalizedModule, error) {
	var modules map[string]NormalizedModule
	if err := c.call(ctx, "sui_getNormalizedMoveModulesByPackage", []any{packageID}, &modules); err != nil {
		return nil, err
	}
	return modules, nil
}

// PackageSource fetches a package and renders it with RenderSource.
func (c *Client) PackageSource(ctx context.Context, packageID string) (string, error) {
	modules, err := c.NormalizedModules(ctx, packageID)
	if err != nil {
		return "", err
	}
	return RenderSource(modules), nil
}

// FrameworkPackageID is the canonical id of the Sui framework package (0x2).
const FrameworkPackageID = "0x0000000000000000000000000000000000000000000000000000000000000002"

// ObjectPackageID resolves the package that defines objectID's type. The
// framework package resolves to itself, as does any package object.
func (c *Client) ObjectPackageID(ctx context.Context, objectID string) (string, error) {
	id, err := NormalizeID(objectID)
	if err != nil {
		return "", err
	}

	var obj objectResponse
	if err := c.call(ctx, "sui_getObject", []any{id, map[string]bool{"showType": true, "showContent": true}}, &obj); err != nil {
		return "", err
	}
	if id == FrameworkPackageID {
		return FrameworkPackageID, nil
	}
	if obj.Error != nil || obj.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return packageFromType(id, obj.Data.Type)
}

func packageFromType(objectID, typ string) (string, error) {
	switch {
	case typ == "package":
		return objectID, nil
	case typ == "":
		return "", fmt.Errorf("%w: object %s has no type", ErrMalformed, objectID)
	}
	pkg := typ
	if i := strings.Index(typ, "::"); i >= 0 {
		pkg = typ[:i]
	}
	normalized, err := NormalizeID(pkg)
	if err != nil {
		return "", fmt.Errorf("%w: cannot extract package from type %q", ErrMalformed, typ)
	}
	return normalized, nil
}

// LatestCheckpoint returns the chain head sequence number.
func (c *Client) LatestCheckpoint(ctx context.Context) (uint64, error) {
	var seq BigUint
	if err := c.call(ctx, "sui_getLatestCheckpointSequenceNumber", nil, &seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

// Checkpoint fetches one checkpoint.
func (c *Client) Checkpoint(ctx context.Context, seq uint64) (*Checkpoint, error) {
	var cp Checkpoint
	if err := c.call(ctx, "sui_getCheckpoint", []any{strconv.FormatUint(seq, 10)}, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// CheckpointTransactions lists the transaction digests in a checkpoint.
func (c *Client) CheckpointTransactions(ctx context.Context, seq uint64) ([]string, error) {
	cp, err := c.Checkpoint(ctx, seq)
	if err != nil {
		return nil, err
	}
	return cp.Transactions, nil
}

var txOptions = map[string]bool{
	"showInput":          true,
	"showRawInput":       false,
	"showEffects":        true,
	"showEvents":         false,
	"showObjectChanges":  true,
	"showBalanceChanges": false,
}

// PublishedPackages returns the packages published by transaction digest.
// Most transactions publish nothing and yield an empty slice.
func (c *Client) PublishedPackages(ctx context.Context, digest string) ([]PublishedPackage, error) {
	var tx txBlock
	if err := c.call(ctx, "sui_getTransactionBlock", []any{digest, txOptions}, &tx); err != nil {
		return nil, err
	}

	var out []PublishedPackage
	for _, change := range tx.ObjectChanges {
		if change.Type != "published" {
			continue
		}
		p := PublishedPackage{
			PackageID:   change.PackageID,
			Modules:     change.Modules,
			Sender:      tx.Transaction.Data.Sender,
			TxDigest:    digest,
			TimestampMs: uint64(tx.TimestampMs),
		}
		if tx.Checkpoint != nil {
			cp := uint64(*tx.Checkpoint)
			p.Checkpoint = &cp
		}
		if tx.Effects != nil {
			gas := uint64(tx.Effects.GasUsed.ComputationCost)
			p.GasUsed = &gas
		}
		out = append(out, p)
	}
	return out, nil
}

// Healthy reports whether the rpc breaker is closed.
func (c *Client) Healthy() bool {
	return c.breaker == nil || c.breaker.State(breakerKey) == circuitbreaker.StateClosed
}
