package infer

import (
	"log/slog"

	"github.com/roach88/qinfer/internal/csn"
)

// DefaultMaxDepth bounds nested expands, sub-queries and calculated element
// expansion. Self-referential schemas (Genres.parent.parent...) stop here.
const DefaultMaxDepth = 4

// Inferrer resolves queries against one model.
//
// Thread-safety: an Inferrer holds no per-query state. Resolve may be called
// from many goroutines at once; the model is only read.
type Inferrer struct {
	model    *csn.Model
	maxDepth int
	logger   *slog.Logger
	ids      IDGenerator
}

// Option configures an Inferrer.
type Option func(*Inferrer)

// WithMaxDepth sets the nesting limit.
//
// Default: 4 (DefaultMaxDepth). Values below 1 are ignored.
func WithMaxDepth(depth int) Option {
	return func(i *Inferrer) {
		if depth > 0 {
			i.maxDepth = depth
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inferrer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIDGenerator sets the resolution id generator. Default: UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(i *Inferrer) {
		if gen != nil {
			i.ids = gen
		}
	}
}

// New creates an Inferrer for model.
func New(model *csn.Model, opts ...Option) *Inferrer {
	i := &Inferrer{
		model:    model,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Model returns the model queries are resolved against.
func (i *Inferrer) Model() *csn.Model {
	return i.model
}

// MaxDepth returns the configured nesting limit.
func (i *Inferrer) MaxDepth() int {
	return i.maxDepth
}
