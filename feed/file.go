// Package feed provides data sources that act as the producer side of a
// queue. A feed runs in its own goroutine, and that goroutine is the
// producer-side context of the output queue: the feed drives the queue's
// producer tick itself, so no other goroutine may call the queue's
// producer operations while the feed is running.
package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/passerella/framedq"
	"github.com/FerroO2000/passerella/internal"
	"github.com/FerroO2000/passerella/internal/config"
	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the file feed configuration.
const (
	DefaultFileConfigChunkDelim        = '\n'
	DefaultFileConfigPushRetryInterval = time.Millisecond
	DefaultFileConfigPushRetryLimit    = 100
)

// DefaultFileConfigWatchedDirs is the default list of directories to watch.
var DefaultFileConfigWatchedDirs = []string{"."}

// FileConfig contains the configuration for the file feed.
type FileConfig struct {
	// WatchedDirs contains the list of directories to watch.
	WatchedDirs []string

	// ChunkDelim is the byte that terminates a chunk.
	// Bytes after the last delimiter are held until the delimiter arrives.
	ChunkDelim byte

	// PushRetryInterval is the duration to wait between push attempts
	// when the output queue is full.
	PushRetryInterval time.Duration

	// PushRetryLimit is the number of push attempts before a chunk
	// is dropped.
	PushRetryLimit int
}

// NewFileConfig returns the default configuration for the file feed.
func NewFileConfig() *FileConfig {
	return &FileConfig{
		WatchedDirs:       DefaultFileConfigWatchedDirs,
		ChunkDelim:        DefaultFileConfigChunkDelim,
		PushRetryInterval: DefaultFileConfigPushRetryInterval,
		PushRetryLimit:    DefaultFileConfigPushRetryLimit,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "WatchedDirs", &c.WatchedDirs, DefaultFileConfigWatchedDirs)

	config.CheckNotNegative(ac, "PushRetryInterval", &c.PushRetryInterval, DefaultFileConfigPushRetryInterval)
	config.CheckNotZero(ac, "PushRetryInterval", &c.PushRetryInterval, DefaultFileConfigPushRetryInterval)

	config.CheckNotLower(ac, "PushRetryLimit", &c.PushRetryLimit, 1)
}

///////////////
//  METRICS  //
///////////////

type fileMetrics struct {
	readBytes     atomic.Int64
	pushedChunks  atomic.Int64
	droppedChunks atomic.Int64

	chunkSizes metric.Int64Histogram
}

func newFileMetrics(tel *internal.Telemetry) *fileMetrics {
	fm := &fileMetrics{}

	tel.NewCounter("read_bytes", func() int64 { return fm.readBytes.Load() })
	tel.NewCounter("pushed_chunks", func() int64 { return fm.pushedChunks.Load() })
	tel.NewCounter("dropped_chunks", func() int64 { return fm.droppedChunks.Load() })

	fm.chunkSizes = tel.NewHistogram("chunk_size", metric.WithUnit("By"))

	return fm
}

////////////
//  FILE  //
////////////

// File is a feed that tails the files of a list of directories.
// Each delimited chunk becomes one single-word packet in the output queue.
type File struct {
	tel *internal.Telemetry

	cfg *FileConfig

	out *framedq.Queue[[]byte]

	watcher *fsnotify.Watcher

	// offsets and partials track per-file read progress.
	// They are only touched by the feed goroutine.
	offsets  map[string]int64
	partials map[string][]byte

	wg        *sync.WaitGroup
	isRunning bool

	metrics *fileMetrics
}

// NewFile returns a new file feed with the given name, pushing into out.
// A nil configuration selects the defaults.
func NewFile(name string, out *framedq.Queue[[]byte], cfg *FileConfig) *File {
	if cfg == nil {
		cfg = NewFileConfig()
	}

	tel := internal.NewTelemetry("feed", name)

	validator := config.NewValidator(tel)
	validator.Validate(cfg)

	return &File{
		tel: tel,

		cfg: cfg,

		out: out,

		offsets:  make(map[string]int64),
		partials: make(map[string][]byte),

		wg: &sync.WaitGroup{},

		metrics: newFileMetrics(tel),
	}
}

// Init creates the watcher and registers the watched directories.
func (f *File) Init(_ context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dirPath := range f.cfg.WatchedDirs {
		if err := watcher.Add(dirPath); err != nil {
			watcher.Close()
			return err
		}
	}

	f.watcher = watcher

	return nil
}

// Run starts the feed goroutine.
// The goroutine stops when the context is cancelled or the feed is closed.
func (f *File) Run(ctx context.Context) {
	if f.isRunning {
		return
	}
	f.isRunning = true

	f.tel.LogInfo("running", "watched_dirs", len(f.cfg.WatchedDirs))

	f.wg.Add(1)

	go func() {
		defer f.wg.Done()

		// The watcher does not fire events for existing files.
		f.readExistingFiles(ctx)

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-f.watcher.Events:
				if !ok {
					return
				}

				f.handleEvent(ctx, event)

			case err, ok := <-f.watcher.Errors:
				if !ok {
					return
				}

				f.tel.LogError("watcher error", err)
			}
		}
	}()
}

// Close stops the feed. It blocks until the feed goroutine has exited.
func (f *File) Close() {
	if !f.isRunning {
		return
	}

	f.watcher.Close()
	f.wg.Wait()

	f.isRunning = false

	f.tel.LogInfo("closed")
}

func (f *File) readExistingFiles(ctx context.Context) {
	for _, dirPath := range f.cfg.WatchedDirs {
		files, err := os.ReadDir(dirPath)
		if err != nil {
			f.tel.LogError("failed to read directory", err, "path", dirPath)
			continue
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}

			f.readFile(ctx, filepath.Join(dirPath, file.Name()))
		}
	}
}

func (f *File) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if event.Op&fsnotify.Remove == fsnotify.Remove ||
		event.Op&fsnotify.Rename == fsnotify.Rename {

		delete(f.offsets, path)
		delete(f.partials, path)

		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create ||
		event.Op&fsnotify.Write == fsnotify.Write {

		f.readFile(ctx, path)
	}
}

// readFile reads the bytes appended to the file since the last read and
// pushes every complete chunk into the output queue.
func (f *File) readFile(ctx context.Context, path string) {
	file, err := os.Open(path)
	if err != nil {
		f.tel.LogError("failed to open file", err, "path", path)
		return
	}
	defer file.Close()

	offset := f.offsets[path]
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			f.tel.LogError("failed to seek file", err, "path", path)
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil && !errors.Is(err, io.EOF) {
		f.tel.LogError("failed to read file", err, "path", path)
		return
	}

	if len(data) == 0 {
		return
	}

	f.offsets[path] = offset + int64(len(data))
	f.metrics.readBytes.Add(int64(len(data)))

	// Prepend the leftover bytes of the previous read
	if partial := f.partials[path]; len(partial) > 0 {
		data = append(partial, data...)
		delete(f.partials, path)
	}

	for {
		idx := bytes.IndexByte(data, f.cfg.ChunkDelim)
		if idx < 0 {
			break
		}

		chunk := make([]byte, idx)
		copy(chunk, data[:idx])
		data = data[idx+1:]

		f.pushChunk(ctx, path, chunk)
	}

	// Hold the bytes after the last delimiter
	if len(data) > 0 {
		partial := make([]byte, len(data))
		copy(partial, data)
		f.partials[path] = partial
	}
}

// pushChunk pushes a chunk as a single-word packet, retrying while the
// queue is full. The chunk is dropped once the retry limit is reached.
// Each attempt ticks the producer side first, so the occupancy view
// refreshes between retries.
func (f *File) pushChunk(ctx context.Context, path string, chunk []byte) {
	_, span := f.tel.NewTrace(ctx, "push file chunk")
	defer span.End()

	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int("chunk_size", len(chunk)),
	)

	for attempt := 0; attempt < f.cfg.PushRetryLimit; attempt++ {
		f.out.ProducerTick()

		if f.out.TryPush(chunk, true) {
			f.metrics.pushedChunks.Add(1)
			f.metrics.chunkSizes.Record(ctx, int64(len(chunk)))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.PushRetryInterval):
		}
	}

	f.metrics.droppedChunks.Add(1)
	f.tel.LogWarn("chunk dropped, queue full", "path", path, "chunk_size", len(chunk))
}
