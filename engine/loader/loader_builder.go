package loader

// LoaderBuilderOption is a functional option for configuring an imageLoader.
// Use the With* functions to create options.
type LoaderBuilderOption func(l *imageLoader)

// WithWorkerCount overrides the decode pool size, which defaults to one less
// than the CPU count.
//
// Parameters:
//   - workers: the number of decode workers, at least 1
//
// Returns:
//   - LoaderBuilderOption: option function to apply
func WithWorkerCount(workers int) LoaderBuilderOption {
	return func(l *imageLoader) {
		l.workers = max(workers, 1)
	}
}
