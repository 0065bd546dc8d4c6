package ui

import (
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const (
	defaultStatsInterval = 30 * time.Second
	// столько ждет итог транзакции или смена сессии, прежде чем быть отброшенным
	settledSendTimeout = 250 * time.Millisecond
)

// UpdateSender доставляет сообщения ядра в UI без блокировки отправителя.
// Логи, балансы и превью при заполненном канале отбрасываются сразу; итоги
// транзакций и смена сессии ждут settledSendTimeout, потому что их повторно
// никто не пришлет.
type UpdateSender struct {
	msgChan       chan tea.Msg
	sent          uint64
	dropped       uint64
	mu            sync.Mutex
	droppedByKind map[string]uint64
	logger        *zap.Logger
	statsInterval time.Duration
	stopStats     chan struct{}
	closeOnce     sync.Once
}

// NewUpdateSender creates a sender with a channel of the given capacity.
func NewUpdateSender(capacity int, logger *zap.Logger) *UpdateSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	us := &UpdateSender{
		msgChan:       make(chan tea.Msg, capacity),
		droppedByKind: make(map[string]uint64),
		logger:        logger.Named("ui-updates"),
		statsInterval: defaultStatsInterval,
		stopStats:     make(chan struct{}),
	}
	go us.logStats()
	return us
}

func (us *UpdateSender) Send(msg tea.Msg) {
	select {
	case us.msgChan <- msg:
		atomic.AddUint64(&us.sent, 1)
		return
	default:
	}

	if settled(msg) {
		timer := time.NewTimer(settledSendTimeout)
		defer timer.Stop()
		select {
		case us.msgChan <- msg:
			atomic.AddUint64(&us.sent, 1)
			return
		case <-timer.C:
			us.logger.Warn("UI did not accept settled update", zap.String("kind", msgKind(msg)))
		}
	}

	atomic.AddUint64(&us.dropped, 1)
	us.mu.Lock()
	us.droppedByKind[msgKind(msg)]++
	us.mu.Unlock()
}

// Chan exposes the receive side to the model.
func (us *UpdateSender) Chan() <-chan tea.Msg {
	return us.msgChan
}

func (us *UpdateSender) Stats() (sent, dropped uint64) {
	return atomic.LoadUint64(&us.sent), atomic.LoadUint64(&us.dropped)
}

// DroppedByKind returns drop counts keyed by message kind ("tx", "log", ...).
func (us *UpdateSender) DroppedByKind() map[string]uint64 {
	us.mu.Lock()
	defer us.mu.Unlock()
	out := make(map[string]uint64, len(us.droppedByKind))
	for k, v := range us.droppedByKind {
		out[k] = v
	}
	return out
}

func (us *UpdateSender) logStats() {
	ticker := time.NewTicker(us.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, dropped := us.Stats()
			if dropped > 0 {
				us.logger.Warn("UI update statistics",
					zap.Uint64("sent", sent),
					zap.Uint64("dropped", dropped),
					zap.Any("dropped_by_kind", us.DroppedByKind()),
					zap.Float64("drop_rate", float64(dropped)/float64(sent+dropped)*100))
			}
		case <-us.stopStats:
			return
		}
	}
}

func (us *UpdateSender) Close() {
	us.closeOnce.Do(func() { close(us.stopStats) })
}

// settled reports messages that carry an outcome nothing will resend.
func settled(msg tea.Msg) bool {
	switch msg.(type) {
	case TxMsg, SessionMsg, SwappedMsg, ApprovedMsg:
		return true
	}
	return false
}

func msgKind(msg tea.Msg) string {
	switch msg.(type) {
	case TxMsg, SwappedMsg, ApprovedMsg:
		return "tx"
	case SessionMsg, ConnectedMsg:
		return "session"
	case BalancesMsg:
		return "balances"
	case PreviewMsg:
		return "preview"
	case LogMsg:
		return "log"
	}
	return "other"
}
