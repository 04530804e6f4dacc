package scripting

import (
	"fmt"

	"github.com/archon/engine/internal/core/contract"
	"github.com/archon/engine/internal/core/wire"
	"github.com/archon/engine/internal/sim"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Command is a script-defined command: a kind plus integer arguments.
type Command struct {
	engine *Engine
	kind   string
	args   []int64
}

func (c *Command) Kind() string { return c.kind }

// Args returns a copy of the arguments.
func (c *Command) Args() []int64 { return append([]int64(nil), c.args...) }

// Validate calls the script's validate function against a read-only view.
// It may return false plus a reason string; raising an error also rejects.
func (c *Command) Validate(s *sim.State) error {
	h, err := c.engine.handler(c.kind)
	if err != nil {
		return err
	}
	if h.validate == nil {
		return nil
	}
	ret, err := c.engine.call(h.validate, s, false, c.args, 2)
	if err != nil {
		return err
	}
	if lua.LVAsBool(ret[0]) {
		return nil
	}
	if reason := lua.LVAsString(ret[1]); reason != "" {
		return fmt.Errorf("%s: %s", c.kind, reason)
	}
	return fmt.Errorf("%s: refused by script", c.kind)
}

// Execute calls the script's execute function with the mutating API. A
// script error here means validate let through a command that cannot apply.
func (c *Command) Execute(s *sim.State) {
	h, err := c.engine.handler(c.kind)
	if err == nil {
		_, err = c.engine.call(h.execute, s, true, c.args, 0)
	}
	if err != nil {
		contract.Violation(c.engine.log, "script command failed after validation",
			zap.String("kind", c.kind), zap.Error(err))
	}
}

func (c *Command) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(1 + 8*len(c.args))
	w.U8(uint8(len(c.args)))
	for _, a := range c.args {
		w.I64(a)
	}
	return w.Bytes(), nil
}

func (e *Engine) decoder(kind string) func([]byte) (sim.Command, error) {
	return func(b []byte) (sim.Command, error) {
		r := wire.NewReader(b)
		n := int(r.U8())
		args := make([]int64, 0, n)
		for i := 0; i < n && r.Err() == nil; i++ {
			args = append(args, r.I64())
		}
		if err := r.Done(); err != nil {
			return nil, err
		}
		return e.Command(kind, args...)
	}
}

func (e *Engine) handler(kind string) (handler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handlers[kind]
	if !ok {
		return handler{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return h, nil
}
