package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FerroO2000/passerella/framedq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainQueue ticks the consumer side of the queue and collects the popped
// chunks until the returned stop function is called. The producer side is
// left alone: the feed goroutine owns it.
func drainQueue(t *testing.T, q *framedq.Queue[[]byte], popEvery time.Duration) (func() []string, func()) {
	t.Helper()

	mux := &sync.Mutex{}
	chunks := []string{}

	done := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()

		for {
			select {
			case <-done:
				return
			default:
			}

			q.ConsumerTick()

			if entry, ok := q.TryPop(); ok {
				mux.Lock()
				chunks = append(chunks, string(entry.Data))
				mux.Unlock()
			}

			time.Sleep(popEvery)
		}
	}()

	get := func() []string {
		mux.Lock()
		defer mux.Unlock()
		return append([]string{}, chunks...)
	}

	stop := func() {
		close(done)
		wg.Wait()
	}

	return get, stop
}

func Test_NewFile(t *testing.T) {
	assert := assert.New(t)

	q, err := framedq.NewQueue[[]byte]("new-file", nil)
	require.NoError(t, err)

	f := NewFile("defaults", q, nil)
	assert.Equal(DefaultFileConfigPushRetryLimit, f.cfg.PushRetryLimit)

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{}
	cfg.PushRetryLimit = -1
	f = NewFile("clamped", q, cfg)
	assert.Equal(DefaultFileConfigWatchedDirs, f.cfg.WatchedDirs)
	assert.Equal(1, f.cfg.PushRetryLimit)
}

func Test_FileInitMissingDir(t *testing.T) {
	q, err := framedq.NewQueue[[]byte]("missing-dir", nil)
	require.NoError(t, err)

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{filepath.Join(t.TempDir(), "does-not-exist")}

	f := NewFile("missing-dir", q, cfg)
	assert.Error(t, f.Init(context.Background()))
}

func Test_FileFeed(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()

	q, err := framedq.NewQueue[[]byte]("file-feed", nil)
	require.NoError(err)

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{dir}

	f := NewFile("file-feed", q, cfg)
	require.NoError(f.Init(context.Background()))

	get, stop := drainQueue(t, q, 10*time.Microsecond)
	defer stop()

	f.Run(context.Background())
	defer f.Close()

	path := filepath.Join(dir, "input.log")
	require.NoError(os.WriteFile(path, []byte("one\ntwo\npart"), 0o644))

	assert.Eventually(func() bool {
		chunks := get()
		return len(chunks) == 2 && chunks[0] == "one" && chunks[1] == "two"
	}, 5*time.Second, time.Millisecond)

	// Complete the held partial chunk and add another one
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(err)
	_, err = file.WriteString("ial\nthree\n")
	require.NoError(err)
	require.NoError(file.Close())

	assert.Eventually(func() bool {
		chunks := get()
		return len(chunks) == 4 && chunks[2] == "partial" && chunks[3] == "three"
	}, 5*time.Second, time.Millisecond)
}

// The feed goroutine is the only goroutine touching the queue's producer
// side, even when the queue fills up and the feed sits in its retry loop
// while the consumer drains slowly.
func Test_FileFeedBackpressure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()

	queueCfg := framedq.NewConfig()
	queueCfg.Depth = 2

	q, err := framedq.NewQueue[[]byte]("backpressure", queueCfg)
	require.NoError(err)

	cfg := NewFileConfig()
	cfg.WatchedDirs = []string{dir}
	cfg.PushRetryInterval = 100 * time.Microsecond
	cfg.PushRetryLimit = 10_000

	f := NewFile("backpressure", q, cfg)
	require.NoError(f.Init(context.Background()))

	get, stop := drainQueue(t, q, time.Millisecond)
	defer stop()

	f.Run(context.Background())
	defer f.Close()

	const chunkCount = 32

	lines := &strings.Builder{}
	expected := make([]string, 0, chunkCount)
	for i := range chunkCount {
		line := fmt.Sprintf("line-%d", i)
		expected = append(expected, line)
		lines.WriteString(line)
		lines.WriteByte('\n')
	}

	path := filepath.Join(dir, "input.log")
	require.NoError(os.WriteFile(path, []byte(lines.String()), 0o644))

	assert.Eventually(func() bool {
		return len(get()) == chunkCount
	}, 30*time.Second, time.Millisecond)

	assert.Equal(expected, get())
	assert.Equal(int64(0), f.metrics.droppedChunks.Load())
}
