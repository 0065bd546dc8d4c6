package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func add(t *testing.T, lb *LogBuffer, msg string) {
	t.Helper()
	require.NoError(t, lb.Add(LogEntry{Level: "INFO", Message: msg}))
}

func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestLogBufferRecentBeforeWrap(t *testing.T) {
	lb, err := NewLogBuffer(5, "")
	require.NoError(t, err)

	add(t, lb, "a")
	add(t, lb, "b")
	add(t, lb, "c")

	assert.Equal(t, []string{"a", "b", "c"}, messages(lb.Recent(0)))
	assert.Equal(t, []string{"b", "c"}, messages(lb.Recent(2)))
	assert.False(t, lb.Recent(1)[0].Timestamp.IsZero())
}

func TestLogBufferWrapKeepsNewest(t *testing.T) {
	lb, err := NewLogBuffer(3, "")
	require.NoError(t, err)

	for _, m := range []string{"1", "2", "3", "4", "5"} {
		add(t, lb, m)
	}
	assert.Equal(t, []string{"3", "4", "5"}, messages(lb.Recent(0)))
	assert.Equal(t, []string{"4", "5"}, messages(lb.Recent(2)))

	total, spilled := lb.Stats()
	assert.Equal(t, uint64(5), total)
	assert.Zero(t, spilled)
}

func TestLogBufferSpillsEvictedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "spill.log")
	lb, err := NewLogBuffer(2, path)
	require.NoError(t, err)

	for _, m := range []string{"1", "2", "3"} {
		add(t, lb, m)
	}
	_, spilled := lb.Stats()
	assert.Equal(t, uint64(1), spilled)
	require.NoError(t, lb.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e.Message)
	}
	// "1" вытеснен при добавлении "3", остальные записаны при Close.
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestLogBufferOnAdd(t *testing.T) {
	lb, err := NewLogBuffer(4, "")
	require.NoError(t, err)

	var seen []string
	lb.OnAdd(func(e LogEntry) { seen = append(seen, e.Message) })
	add(t, lb, "x")
	add(t, lb, "y")
	assert.Equal(t, []string{"x", "y"}, seen)
}

func TestLogBufferConcurrentAccess(t *testing.T) {
	lb, err := NewLogBuffer(100, filepath.Join(t.TempDir(), "spill.log"))
	require.NoError(t, err)
	defer lb.Close()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = lb.Add(LogEntry{Level: "INFO", Message: fmt.Sprintf("g%d-%d", g, i)})
				if i%10 == 0 {
					_ = lb.Recent(10)
				}
			}
		}()
	}
	wg.Wait()

	total, spilled := lb.Stats()
	assert.Equal(t, uint64(1000), total)
	assert.Equal(t, uint64(900), spilled)
	assert.Len(t, lb.Recent(0), 100)
}

func TestNewLogBufferRejectsBadSize(t *testing.T) {
	_, err := NewLogBuffer(0, "")
	assert.Error(t, err)
}
