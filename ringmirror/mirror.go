// Package ringmirror offers an optional write-behind mirror that shadows a
// ringio target's flushed bytes into a GCS bucket, wired in as a
// ringio.FlushObserver rather than being known to ringio itself.
package ringmirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/neehar-mavuduru/ringest/ringio"
	"golang.org/x/sync/semaphore"
	"google.golang.org/api/option"
)

// maxChunksPerCompose is GCS's hard limit on sources in a single compose
// call; exceeding it requires a recursive intermediate-compose pass.
const maxChunksPerCompose = 32

// Config controls how a Mirror uploads and composes flushed ranges.
type Config struct {
	Bucket            string
	ObjectPrefix      string // final mirror object is ObjectPrefix/<id>
	GRPCPoolSize      int
	MaxConcurrentPuts int64
}

func (c *Config) applyDefaults() {
	if c.GRPCPoolSize <= 0 {
		c.GRPCPoolSize = 4
	}
	if c.MaxConcurrentPuts <= 0 {
		c.MaxConcurrentPuts = 8
	}
}

// Mirror implements ringio.FlushObserver. Each OnFlush call stages the
// merged runs from that flush as individually-named chunk objects, uploads
// them concurrently, and recomposes the target's full mirror object once
// enough chunks have accumulated to cross maxChunksPerCompose.
type Mirror struct {
	cfg    Config
	client *storage.Client
	sem    *semaphore.Weighted
	logger *log.Logger

	mu     sync.Mutex
	chunks map[uint64][]string // id -> ordered chunk object names awaiting compose
}

// New dials a GCS client with a pooled gRPC connection, matching the
// teacher uploader's client construction, and returns a ready Mirror.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Mirror, error) {
	cfg.applyDefaults()

	clientOpts := append([]option.ClientOption{option.WithGRPCConnectionPool(cfg.GRPCPoolSize)}, opts...)
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("ringmirror: create storage client: %w", err)
	}

	return &Mirror{
		cfg:    cfg,
		client: client,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentPuts),
		logger: log.Default(),
		chunks: make(map[uint64][]string),
	}, nil
}

// Close releases the underlying GCS client.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// OnFlush implements ringio.FlushObserver. Upload and compose failures are
// logged, never returned or panicked on, so a mirror outage never fails the
// flush that triggered it.
func (m *Mirror) OnFlush(id uint64, ranges []ringio.PendingWrite) {
	if len(ranges) == 0 {
		return
	}

	ctx := context.Background()
	names := make([]string, len(ranges))
	var wg sync.WaitGroup
	errs := make([]error, len(ranges))

	for i, r := range ranges {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.logger.Printf("ringmirror: acquire failed for target %d: %v", id, err)
			continue
		}
		names[i] = m.chunkName(id, r.Offset)
		wg.Add(1)
		go func(i int, r ringio.PendingWrite) {
			defer wg.Done()
			defer m.sem.Release(1)
			errs[i] = m.putChunk(ctx, names[i], r.Data)
		}(i, r)
	}
	wg.Wait()

	staged := names[:0]
	for i, err := range errs {
		if err != nil {
			m.logger.Printf("ringmirror: chunk upload failed for target %d: %v", id, err)
			continue
		}
		staged = append(staged, names[i])
	}
	if len(staged) == 0 {
		return
	}

	m.mu.Lock()
	m.chunks[id] = append(m.chunks[id], staged...)
	pending := m.chunks[id]
	m.mu.Unlock()

	if len(pending) < maxChunksPerCompose {
		return
	}

	if err := m.recompose(ctx, id); err != nil {
		m.logger.Printf("ringmirror: recompose failed for target %d: %v", id, err)
	}
}

func (m *Mirror) chunkName(id uint64, offset uint64) string {
	return fmt.Sprintf("%s/_chunks/%d/%d-%s", m.cfg.ObjectPrefix, id, offset, uuid.NewString())
}

func (m *Mirror) objectName(id uint64) string {
	return fmt.Sprintf("%s/%d", m.cfg.ObjectPrefix, id)
}

func (m *Mirror) putChunk(ctx context.Context, name string, data []byte) error {
	bkt := m.client.Bucket(m.cfg.Bucket)
	w := bkt.Object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write chunk %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close chunk %s: %w", name, err)
	}
	return nil
}

// recompose appends all pending chunk objects for id to its mirror object
// (creating it when absent), recursing through intermediate composes when
// there are more than maxChunksPerCompose sources — GCS's compose call
// accepts at most 32 sources regardless of how it's reached.
func (m *Mirror) recompose(ctx context.Context, id uint64) error {
	m.mu.Lock()
	objects := append([]string(nil), m.chunks[id]...)
	m.mu.Unlock()

	dst := m.objectName(id)
	sources := objects
	if _, err := m.client.Bucket(m.cfg.Bucket).Object(dst).Attrs(ctx); err == nil {
		sources = append([]string{dst}, objects...)
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("stat mirror object %s: %w", dst, err)
	}
	if err := m.composeInto(ctx, dst, sources); err != nil {
		return err
	}

	m.mu.Lock()
	remaining := m.chunks[id][len(objects):]
	m.chunks[id] = append([]string(nil), remaining...)
	m.mu.Unlock()

	m.cleanup(ctx, objects)
	return nil
}

func (m *Mirror) composeInto(ctx context.Context, dst string, sourceNames []string) error {
	if len(sourceNames) <= maxChunksPerCompose {
		return m.singleCompose(ctx, dst, sourceNames)
	}

	var intermediates []string
	for i, group := range groupChunks(sourceNames, maxChunksPerCompose) {
		intermediate := fmt.Sprintf("%s.intermediate.%d", dst, i)
		if err := m.singleCompose(ctx, intermediate, group); err != nil {
			m.cleanup(ctx, intermediates)
			return fmt.Errorf("compose intermediate %s: %w", intermediate, err)
		}
		intermediates = append(intermediates, intermediate)
	}

	if err := m.composeInto(ctx, dst, intermediates); err != nil {
		m.cleanup(ctx, intermediates)
		return err
	}
	m.cleanup(ctx, intermediates)
	return nil
}

func (m *Mirror) singleCompose(ctx context.Context, dst string, sourceNames []string) error {
	if len(sourceNames) == 0 {
		return fmt.Errorf("no chunks to compose into %s", dst)
	}

	bkt := m.client.Bucket(m.cfg.Bucket)
	sources := make([]*storage.ObjectHandle, len(sourceNames))
	for i, name := range sourceNames {
		sources[i] = bkt.Object(name)
	}

	composer := bkt.Object(dst).ComposerFrom(sources...)
	composer.ContentType = "application/octet-stream"

	if _, err := composer.Run(ctx); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	return nil
}

// groupChunks splits names into consecutive groups of at most max, used to
// stay under GCS's per-compose source limit at every level of recursion.
func groupChunks(names []string, max int) [][]string {
	var groups [][]string
	for i := 0; i < len(names); i += max {
		end := i + max
		if end > len(names) {
			end = len(names)
		}
		groups = append(groups, names[i:end])
	}
	return groups
}

func (m *Mirror) cleanup(ctx context.Context, objects []string) {
	bkt := m.client.Bucket(m.cfg.Bucket)
	for _, obj := range objects {
		if err := bkt.Object(obj).Delete(ctx); err != nil {
			m.logger.Printf("ringmirror: cleanup of %s failed: %v", obj, err)
		}
	}
}
