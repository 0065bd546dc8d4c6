package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestUpdateSenderNonBlocking(t *testing.T) {
	sender := NewUpdateSender(10, zap.NewNop())
	defer sender.Close()

	for i := 0; i < 10; i++ {
		sender.Send(TxMsg{Kind: "swap"})
	}

	start := time.Now()
	for i := 0; i < 100; i++ {
		sender.Send(LogMsg{})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	sent, dropped := sender.Stats()
	assert.Equal(t, uint64(10), sent)
	assert.Equal(t, uint64(100), dropped)
	assert.Equal(t, map[string]uint64{"log": 100}, sender.DroppedByKind())
	assert.Len(t, sender.Chan(), 10)
}

func TestUpdateSenderWaitsForSettledTx(t *testing.T) {
	sender := NewUpdateSender(1, zap.NewNop())
	defer sender.Close()
	sender.Send(BalancesMsg{Wallet: "w"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-sender.Chan()
	}()
	sender.Send(TxMsg{Kind: "swap", Hash: "0xa1"})

	sent, dropped := sender.Stats()
	assert.Equal(t, uint64(2), sent)
	assert.Zero(t, dropped)
	assert.Equal(t, TxMsg{Kind: "swap", Hash: "0xa1"}, <-sender.Chan())
}

func TestUpdateSenderDropsSettledAfterTimeout(t *testing.T) {
	sender := NewUpdateSender(1, zap.NewNop())
	defer sender.Close()
	sender.Send(SessionMsg{Address: "0x1"})

	start := time.Now()
	sender.Send(SessionMsg{Disconnected: true})
	assert.GreaterOrEqual(t, time.Since(start), settledSendTimeout)

	_, dropped := sender.Stats()
	assert.Equal(t, uint64(1), dropped)
	assert.Equal(t, map[string]uint64{"session": 1}, sender.DroppedByKind())
}

func TestUpdateSenderConcurrent(t *testing.T) {
	sender := NewUpdateSender(100, zap.NewNop())
	defer sender.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sender.Send(BalancesMsg{Wallet: "w"})
			}
		}()
	}
	wg.Wait()

	sent, dropped := sender.Stats()
	assert.Equal(t, uint64(1000), sent+dropped)
	assert.Equal(t, uint64(100), sent)
}

func TestUpdateSenderCloseTwice(t *testing.T) {
	sender := NewUpdateSender(1, nil)
	sender.Close()
	assert.NotPanics(t, sender.Close)
}
