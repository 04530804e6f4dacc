// Package scripting lets Lua scripts define command kinds. A script calls
//
//	register_command("raise_levies", {
//	    validate = function(s, args) return s.count_of(args[1]) > 0, "no provinces" end,
//	    execute  = function(s, args) s.add_modifier("owner", args[1], 1, 7, 500, 0, 0) end,
//	})
//
// and the kind can then be submitted like any built-in command. Scripts only
// exchange integers with the state so results are identical on every peer.
package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/archon/engine/internal/core/command"
	"github.com/archon/engine/internal/data"
	"github.com/archon/engine/internal/sim"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// MaxArgs bounds the argument list of a script command.
const MaxArgs = 64

// maxExact is the largest integer a Lua number holds without rounding.
const maxExact = 1 << 53

var (
	ErrUnknownKind = errors.New("unknown script command")
	ErrArgs        = errors.New("invalid script arguments")
	ErrScript      = errors.New("script error")
)

type handler struct {
	validate *lua.LFunction
	execute  *lua.LFunction
}

// Engine wraps a single gopher-lua VM. The VM is guarded by a mutex, so
// script commands may be validated and executed from any goroutine.
type Engine struct {
	mu       sync.Mutex
	vm       *lua.LState
	handlers map[string]handler
	types    *data.ModifierTypeTable
	log      *zap.Logger

	cur      *sim.State // bound for the duration of one script call
	readAPI  *lua.LTable
	writeAPI *lua.LTable
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory: core/ first, then commands/. types resolves modifier names for
// the modifier_type helper and may be nil.
func NewEngine(scriptsDir string, types *data.ModifierTypeTable, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(vm)

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:       vm,
		handlers: make(map[string]handler),
		types:    types,
		log:      log,
	}
	e.readAPI = e.newAPI(false)
	e.writeAPI = e.newAPI(true)
	vm.SetGlobal("register_command", vm.NewFunction(e.registerCommand))

	for _, sub := range []string{"core", "commands"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	log.Info("lua scripts loaded", zap.Int("commands", len(e.handlers)))
	return e, nil
}

// openSafeLibs opens the libraries whose results do not depend on the host.
// os, io and math (math.random) stay closed.
func openSafeLibs(vm *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
	} {
		vm.Push(vm.NewFunction(lib.fn))
		vm.Push(lua.LString(lib.name))
		vm.Call(1, 0)
	}
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source, typically to register commands in
// tests or from an admin console.
func (e *Engine) LoadString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.DoString(src)
}

// registerCommand implements register_command(kind, {validate=fn, execute=fn}).
func (e *Engine) registerCommand(L *lua.LState) int {
	kind := L.CheckString(1)
	def := L.CheckTable(2)
	if kind == "" {
		L.ArgError(1, "empty command kind")
		return 0
	}
	if _, dup := e.handlers[kind]; dup {
		L.RaiseError("command %q registered twice", kind)
		return 0
	}
	execute, ok := def.RawGetString("execute").(*lua.LFunction)
	if !ok {
		L.ArgError(2, "execute must be a function")
		return 0
	}
	h := handler{execute: execute}
	switch v := def.RawGetString("validate").(type) {
	case *lua.LFunction:
		h.validate = v
	case *lua.LNilType:
	default:
		L.ArgError(2, "validate must be a function")
		return 0
	}
	e.handlers[kind] = h
	return 0
}

// Kinds returns the script-defined command kinds, sorted.
func (e *Engine) Kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.handlers))
	for k := range e.handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Register adds a decoder for every script kind to reg.
func (e *Engine) Register(reg *command.Registry[*sim.State]) error {
	for _, kind := range e.Kinds() {
		if err := reg.Register(kind, e.decoder(kind)); err != nil {
			return fmt.Errorf("script command %s: %w", kind, err)
		}
	}
	return nil
}

// Command builds a submission-ready command of a script kind.
func (e *Engine) Command(kind string, args ...int64) (sim.Command, error) {
	e.mu.Lock()
	_, ok := e.handlers[kind]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err := checkArgs(args); err != nil {
		return nil, err
	}
	return &Command{engine: e, kind: kind, args: slices.Clone(args)}, nil
}

func checkArgs(args []int64) error {
	if len(args) > MaxArgs {
		return fmt.Errorf("%w: %d arguments, limit %d", ErrArgs, len(args), MaxArgs)
	}
	for i, a := range args {
		if a > maxExact || a < -maxExact {
			return fmt.Errorf("%w: argument %d (%d) not exactly representable", ErrArgs, i+1, a)
		}
	}
	return nil
}

// call runs fn(api, args) with st bound and returns its results.
func (e *Engine) call(fn *lua.LFunction, st *sim.State, writable bool, args []int64, nret int) ([]lua.LValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur = st
	defer func() { e.cur = nil }()

	api := e.readAPI
	if writable {
		api = e.writeAPI
	}
	argt := e.vm.CreateTable(len(args), 0)
	for _, a := range args {
		argt.Append(lua.LNumber(a))
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    nret,
		Protect: true,
	}, api, argt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScript, err)
	}
	out := make([]lua.LValue, nret)
	for i := range out {
		out[i] = e.vm.Get(-nret + i)
	}
	e.vm.Pop(nret)
	return out, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
