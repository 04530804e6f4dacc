package scripting

import (
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/fixed"
	"github.com/archon/engine/internal/core/modifier"
	lua "github.com/yuin/gopher-lua"
)

// milli is the scale of fractional values crossing into Lua: 1500 = 1.5.
const milli = 1000

// newAPI builds the table passed to validate and execute. Mutators are only
// present in the writable table.
func (e *Engine) newAPI(writable bool) *lua.LTable {
	fns := map[string]lua.LGFunction{
		"tick":          e.luaTick,
		"owner":         e.luaOwner,
		"controller":    e.luaController,
		"terrain":       e.luaTerrain,
		"exists":        e.luaExists,
		"count_of":      e.luaCountOf,
		"entities_of":   e.luaEntitiesOf,
		"effective":     e.luaEffective,
		"has_modifier":  e.luaHasModifier,
		"modifier_type": e.luaModifierType,
	}
	if writable {
		fns["set_owner"] = e.luaSetOwner
		fns["set_controller"] = e.luaSetController
		fns["add_modifier"] = e.luaAddModifier
		fns["remove_modifier"] = e.luaRemoveModifier
	}
	return e.vm.SetFuncs(e.vm.NewTable(), fns)
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	v := L.CheckInt64(n)
	if v < 0 || v >= ecs.MaxEntities {
		L.ArgError(n, "entity id out of range")
	}
	return ecs.EntityID(v)
}

func (e *Engine) checkOwner(L *lua.LState, n int) ecs.OwnerID {
	v := L.CheckInt64(n)
	if v < 0 || v >= int64(e.cur.Entities.MaxOwners()) {
		L.ArgError(n, "owner out of range")
	}
	return ecs.OwnerID(v)
}

func checkType(L *lua.LState, n int) modifier.TypeID {
	v := L.CheckInt64(n)
	if v < 0 || v >= modifier.MaxTypes {
		L.ArgError(n, "modifier type out of range")
	}
	return modifier.TypeID(v)
}

// checkScope reads a ("global"|"owner"|"entity", id) pair.
func (e *Engine) checkScope(L *lua.LState, n int) modifier.Scope {
	switch L.CheckString(n) {
	case "global":
		return modifier.GlobalScope()
	case "owner":
		o := e.checkOwner(L, n+1)
		if o == ecs.Unowned {
			L.ArgError(n+1, "owner scope needs a real owner")
		}
		return modifier.OwnerScope(o)
	case "entity":
		id := checkEntity(L, n+1)
		if !e.cur.Entities.Has(id) {
			L.ArgError(n+1, "no such entity")
		}
		return modifier.EntityScope(id)
	}
	L.ArgError(n, "scope must be global, owner or entity")
	return modifier.Scope{}
}

func (e *Engine) luaTick(L *lua.LState) int {
	L.Push(lua.LNumber(e.cur.Tick()))
	return 1
}

// owner(id) returns nil for an unknown entity.
func (e *Engine) luaOwner(L *lua.LState) int {
	o, ok := e.cur.Entities.Owner(checkEntity(L, 1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(o))
	return 1
}

func (e *Engine) luaController(L *lua.LState) int {
	c, ok := e.cur.Entities.Controller(checkEntity(L, 1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(c))
	return 1
}

func (e *Engine) luaTerrain(L *lua.LState) int {
	t, ok := e.cur.Entities.Terrain(checkEntity(L, 1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(t))
	return 1
}

func (e *Engine) luaExists(L *lua.LState) int {
	L.Push(lua.LBool(e.cur.Entities.Has(checkEntity(L, 1))))
	return 1
}

func (e *Engine) luaCountOf(L *lua.LState) int {
	L.Push(lua.LNumber(e.cur.Entities.Owners().CountOf(e.checkOwner(L, 1))))
	return 1
}

// entities_of(owner) returns a new array, sorted by entity id.
func (e *Engine) luaEntitiesOf(L *lua.LState) int {
	ids := e.cur.Entities.Owners().EntitiesOf(e.checkOwner(L, 1))
	t := L.CreateTable(len(ids), 0)
	for _, id := range ids {
		t.Append(lua.LNumber(id))
	}
	L.Push(t)
	return 1
}

// effective(id, type, base) returns the modified base in thousandths.
func (e *Engine) luaEffective(L *lua.LState) int {
	id := checkEntity(L, 1)
	t := checkType(L, 2)
	base := fixed.FromInt(L.CheckInt64(3))
	v := e.cur.Modifiers.Effective(id, t, base)
	L.Push(lua.LNumber(v.Mul(fixed.FromInt(milli)).Round()))
	return 1
}

func (e *Engine) luaHasModifier(L *lua.LState) int {
	scope := e.checkScope(L, 1)
	L.Push(lua.LBool(e.cur.Modifiers.Has(scope, checkType(L, 3), uint32(L.CheckInt64(4)))))
	return 1
}

// modifier_type(name) resolves a catalog name, nil when unknown.
func (e *Engine) luaModifierType(L *lua.LState) int {
	name := L.CheckString(1)
	if e.types == nil {
		L.Push(lua.LNil)
		return 1
	}
	id, ok := e.types.ID(name)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(id))
	return 1
}

func (e *Engine) luaSetOwner(L *lua.LState) int {
	if err := e.cur.Entities.SetOwner(checkEntity(L, 1), e.checkOwner(L, 2)); err != nil {
		L.RaiseError("set_owner: %s", err)
	}
	return 0
}

func (e *Engine) luaSetController(L *lua.LState) int {
	if err := e.cur.Entities.SetController(checkEntity(L, 1), e.checkOwner(L, 2)); err != nil {
		L.RaiseError("set_controller: %s", err)
	}
	return 0
}

// add_modifier(scope, id, type, source, add, mul, expiry) with add and mul in
// thousandths. expiry 0 never expires.
func (e *Engine) luaAddModifier(L *lua.LState) int {
	scope := e.checkScope(L, 1)
	t := checkType(L, 3)
	source := uint32(L.CheckInt64(4))
	v := modifier.Value{
		Add: fixed.FromRatio(L.CheckInt64(5), milli),
		Mul: fixed.FromRatio(L.CheckInt64(6), milli),
	}
	expiry := uint64(L.OptInt64(7, 0))
	if expiry != 0 && expiry <= e.cur.Tick() {
		L.ArgError(7, "expiry already passed")
	}
	if err := e.cur.Modifiers.AddModifier(scope, t, v, source, expiry); err != nil {
		L.RaiseError("add_modifier: %s", err)
	}
	return 0
}

// remove_modifier(scope, id, type, source) returns whether it existed.
func (e *Engine) luaRemoveModifier(L *lua.LState) int {
	scope := e.checkScope(L, 1)
	L.Push(lua.LBool(e.cur.Modifiers.RemoveModifier(scope, checkType(L, 3), uint32(L.CheckInt64(4)))))
	return 1
}
