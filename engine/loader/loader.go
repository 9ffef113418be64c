package loader

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	flux "github.com/Carmen-Shannon/flux-go"
	"github.com/Carmen-Shannon/flux-go/common"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Loader decodes texture files into upload-ready pixel data and caches the
// result by path. Decoding fans out across a worker pool so a scene's texture
// set loads in parallel; the GPU upload itself stays on the calling thread.
type Loader interface {
	// Load decodes one image file, serving repeat requests from the cache.
	// Three-channel sources come back already expanded to their four-channel
	// format variant.
	//
	// Parameters:
	//   - path: the image file path, the cache key
	//
	// Returns:
	//   - *common.ImageData: the decoded pixel data
	//   - error: error if the file cannot be read or decoded
	Load(path string) (*common.ImageData, error)

	// LoadAll decodes a batch of image files in parallel, preserving input
	// order in the result. Cached entries are returned without re-decoding.
	//
	// Parameters:
	//   - paths: the image file paths
	//
	// Returns:
	//   - []*common.ImageData: the decoded pixel data, index-aligned with paths
	//   - error: the first decode error encountered
	LoadAll(paths []string) ([]*common.ImageData, error)

	// Evict drops one cached entry.
	//
	// Parameters:
	//   - path: the cache key to drop
	Evict(path string)

	// Clear drops every cached entry.
	Clear()
}

// imageLoader is the implementation of the Loader interface.
type imageLoader struct {
	mu sync.RWMutex

	cache map[string]*common.ImageData

	decodePool worker.DynamicWorkerPool

	// workers is stored so we can log/inspect the configured count.
	workers int

	taskID int
}

var _ Loader = &imageLoader{}

// NewLoader creates a Loader with the specified options.
//
// Parameters:
//   - options: functional options to configure the loader
//
// Returns:
//   - Loader: the configured loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &imageLoader{
		cache:   make(map[string]*common.ImageData),
		workers: max(runtime.NumCPU()-1, 1),
	}
	for _, opt := range options {
		opt(l)
	}
	l.decodePool = worker.NewDynamicWorkerPool(l.workers, 256, 1*time.Second)
	return l
}

func (l *imageLoader) Load(path string) (*common.ImageData, error) {
	l.mu.RLock()
	cached, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}
	data, err := common.ImageDataFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %q: %w", path, err)
	}
	l.mu.Lock()
	l.cache[path] = data
	l.mu.Unlock()
	return data, nil
}

func (l *imageLoader) LoadAll(paths []string) ([]*common.ImageData, error) {
	results := make([]*common.ImageData, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	l.mu.Lock()
	for i, path := range paths {
		if cached, ok := l.cache[path]; ok {
			results[i] = cached
			continue
		}
		wg.Add(1)
		idx, p := i, path
		id := l.taskID
		l.taskID++
		l.decodePool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				data, err := common.ImageDataFromFile(p)
				if err != nil {
					errs[idx] = fmt.Errorf("failed to load image %q: %w", p, err)
					return nil, err
				}
				results[idx] = data
				return data, nil
			},
		})
	}
	l.mu.Unlock()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	l.mu.Lock()
	for i, path := range paths {
		l.cache[path] = results[i]
	}
	l.mu.Unlock()
	flux.Logger().Debug("decoded image batch",
		slog.Int("count", len(paths)),
		slog.Int("workers", l.workers))
	return results, nil
}

func (l *imageLoader) Evict(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

func (l *imageLoader) Clear() {
	l.mu.Lock()
	l.cache = make(map[string]*common.ImageData)
	l.mu.Unlock()
}
