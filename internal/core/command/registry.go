package command

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Decoder rebuilds a command from its journaled payload.
type Decoder[S any] func(payload []byte) (Command[S], error)

// Registry maps command kinds to decoders so journaled commands can be
// replayed and remote submissions decoded.
type Registry[S any] struct {
	mu       sync.RWMutex
	decoders map[string]Decoder[S]
	log      *zap.Logger
}

func NewRegistry[S any](log *zap.Logger) *Registry[S] {
	return &Registry[S]{
		decoders: make(map[string]Decoder[S]),
		log:      log,
	}
}

// Register adds a decoder for kind. Registering a kind twice is an error.
func (reg *Registry[S]) Register(kind string, dec Decoder[S]) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.decoders[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, kind)
	}
	reg.decoders[kind] = dec
	return nil
}

// Decode rebuilds a command of kind from payload.
func (reg *Registry[S]) Decode(kind string, payload []byte) (Command[S], error) {
	reg.mu.RLock()
	dec, ok := reg.decoders[kind]
	reg.mu.RUnlock()
	if !ok {
		reg.log.Debug("unknown command kind", zap.String("kind", kind))
		return nil, fmt.Errorf("%w: %s", ErrUnknown, kind)
	}
	cmd, err := dec(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return cmd, nil
}

// Kinds returns the registered kinds, sorted.
func (reg *Registry[S]) Kinds() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.decoders))
	for k := range reg.decoders {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
