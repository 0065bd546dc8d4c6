// internal/blockchain/ethrpc/client.go
package ethrpc

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

const (
	DefaultDialTimeout = 10 * time.Second
	maxDialTries       = 3
	healthCheckPeriod  = 30 * time.Second
)

// Client реализует blockchain.Backend поверх пула RPC узлов. Транспортные
// ошибки переключают запрос на следующий активный узел; ответы узла
// возвращаются как есть.
type Client struct {
	nodes   []*Node
	chainID uint64
	metrics *metrics.Collector
	logger  *zap.Logger

	mu   sync.Mutex
	curr int
}

var _ blockchain.Backend = (*Client)(nil)

// Dial подключается ко всем urls с экспоненциальными повторами и проверяет,
// что каждый узел обслуживает chainID. Недоступные узлы пропускаются;
// ошибка возвращается, только если не подключился ни один.
func Dial(ctx context.Context, urls []string, chainID uint64, collector *metrics.Collector, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}
	logger = logger.Named("eth-rpc")

	var nodes []*Node
	for _, url := range urls {
		node, err := dialNode(ctx, url, chainID, logger)
		if err != nil {
			logger.Warn("Failed to initialize node", zap.String("url", url), zap.Error(err))
			continue
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("failed to initialize any nodes: %w", ErrNoActiveNodes)
	}
	logger.Info("RPC pool ready", zap.Int("nodes", len(nodes)), zap.Uint64("chain_id", chainID))
	return newClient(nodes, chainID, collector, logger), nil
}

func newClient(nodes []*Node, chainID uint64, collector *metrics.Collector, logger *zap.Logger) *Client {
	return &Client{nodes: nodes, chainID: chainID, metrics: collector, logger: logger, curr: -1}
}

func dialNode(ctx context.Context, url string, chainID uint64, logger *zap.Logger) (*Node, error) {
	operation := func() (*Node, error) {
		dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()

		raw, err := rpc.DialContext(dialCtx, url)
		if err != nil {
			return nil, err
		}
		node := newNode(url, raw)
		got, err := node.client.ChainID(dialCtx)
		if err != nil {
			raw.Close()
			return nil, err
		}
		if got.Uint64() != chainID {
			raw.Close()
			return nil, backoff.Permanent(fmt.Errorf("%w: %s reports %d, want %d", ErrChainMismatch, url, got.Uint64(), chainID))
		}
		return node, nil
	}
	notify := func(err error, d time.Duration) {
		logger.Debug("Dial attempt failed", zap.String("url", url), zap.Error(err), zap.Duration("backoff", d))
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxDialTries),
		backoff.WithNotify(notify))
}

// Nodes returns the pool members.
func (c *Client) Nodes() []*Node {
	return c.nodes
}

// RPC returns the raw client of the first active node.
func (c *Client) RPC() *rpc.Client {
	for _, n := range c.nodes {
		if n.IsActive() {
			return n.raw
		}
	}
	return c.nodes[0].raw
}

func (c *Client) nextNode() *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < len(c.nodes); i++ {
		c.curr = (c.curr + 1) % len(c.nodes)
		if c.nodes[c.curr].IsActive() {
			return c.nodes[c.curr]
		}
	}
	return nil
}

// do выполняет операцию, переходя к следующему узлу при транспортной ошибке.
func (c *Client) do(ctx context.Context, method string, op func(*Node) error) error {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < len(c.nodes); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		node := c.nextNode()
		if node == nil {
			lastErr = ErrNoActiveNodes
			break
		}

		callStart := time.Now()
		err := op(node)
		node.updateMetrics(err == nil, time.Since(callStart))
		if err == nil || !retryable(err) {
			c.metrics.RecordRPCLatency(method, time.Since(start), err)
			return err
		}

		node.setActive(false)
		c.logger.Warn("Node marked as inactive",
			zap.String("url", node.URL),
			zap.String("method", method),
			zap.Error(err))
		lastErr = &Error{Err: err, NodeURL: node.URL, Method: method}
	}
	c.metrics.RecordRPCLatency(method, time.Since(start), lastErr)
	return lastErr
}

// HealthCheck reactivates nodes that answer eth_chainId with the right chain.
func (c *Client) HealthCheck(ctx context.Context) int {
	active := 0
	for _, n := range c.nodes {
		id, err := n.client.ChainID(ctx)
		healthy := err == nil && id.Uint64() == c.chainID
		if healthy && !n.IsActive() {
			c.logger.Info("Node is healthy again", zap.String("url", n.URL))
		}
		n.setActive(healthy)
		if healthy {
			active++
		}
	}
	return active
}

// StartHealthCheck runs HealthCheck periodically until ctx is done.
func (c *Client) StartHealthCheck(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(healthCheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if active := c.HealthCheck(ctx); active == 0 {
					c.logger.Error("No healthy RPC nodes")
				}
			}
		}
	}()
}

func (c *Client) Close() {
	for _, n := range c.nodes {
		n.raw.Close()
	}
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(n *Node) (err error) {
		out, err = n.client.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_getCode", func(n *Node) (err error) {
		out, err = n.client.CodeAt(ctx, account, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var out uint64
	err := c.do(ctx, "eth_estimateGas", func(n *Node) (err error) {
		out, err = n.client.EstimateGas(ctx, msg)
		return err
	})
	return out, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "eth_gasPrice", func(n *Node) (err error) {
		out, err = n.client.SuggestGasPrice(ctx)
		return err
	})
	return out, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "eth_getBalance", func(n *Node) (err error) {
		out, err = n.client.BalanceAt(ctx, account, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var out uint64
	err := c.do(ctx, "eth_getTransactionCount", func(n *Node) (err error) {
		out, err = n.client.PendingNonceAt(ctx, account)
		return err
	})
	return out, err
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, "eth_chainId", func(n *Node) (err error) {
		out, err = n.client.ChainID(ctx)
		return err
	})
	return out, err
}

// SendTransaction не повторяется на другом узле: транзакция могла уйти в
// mempool до обрыва соединения.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	node := c.nextNode()
	if node == nil {
		return ErrNoActiveNodes
	}
	start := time.Now()
	err := node.client.SendTransaction(ctx, tx)
	node.updateMetrics(err == nil, time.Since(start))
	c.metrics.RecordRPCLatency("eth_sendRawTransaction", time.Since(start), err)
	if err != nil {
		return &Error{Err: err, NodeURL: node.URL, Method: "eth_sendRawTransaction"}
	}
	return nil
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	err := c.do(ctx, "eth_getTransactionReceipt", func(n *Node) (err error) {
		out, err = n.client.TransactionReceipt(ctx, txHash)
		return err
	})
	return out, err
}
