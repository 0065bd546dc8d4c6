// internal/blockchain/ethrpc/node.go
package ethrpc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Node представляет отдельный RPC узел
type Node struct {
	URL    string
	raw    *rpc.Client
	client *ethclient.Client

	mu     sync.RWMutex
	active bool

	successCount atomic.Uint64
	errorCount   atomic.Uint64
	latency      atomic.Int64
}

func newNode(url string, raw *rpc.Client) *Node {
	return &Node{URL: url, raw: raw, client: ethclient.NewClient(raw), active: true}
}

func (n *Node) setActive(state bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = state
}

// IsActive возвращает текущий статус узла
func (n *Node) IsActive() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.active
}

func (n *Node) updateMetrics(success bool, latency time.Duration) {
	if success {
		n.successCount.Add(1)
	} else {
		n.errorCount.Add(1)
	}
	// Скользящее среднее
	prev := time.Duration(n.latency.Load())
	n.latency.Store(int64((prev + latency) / 2))
}

// Metrics возвращает счетчики успешных и неудачных запросов и среднюю задержку
func (n *Node) Metrics() (successCount uint64, errorCount uint64, avgLatency time.Duration) {
	return n.successCount.Load(), n.errorCount.Load(), time.Duration(n.latency.Load())
}
