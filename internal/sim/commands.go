package sim

import (
	"errors"
	"fmt"
	"slices"

	"github.com/archon/engine/internal/core/command"
	"github.com/archon/engine/internal/core/contract"
	"github.com/archon/engine/internal/core/ecs"
	"github.com/archon/engine/internal/core/fixed"
	"github.com/archon/engine/internal/core/modifier"
	"github.com/archon/engine/internal/core/wire"
	"go.uber.org/zap"
)

// Built-in command kinds.
const (
	KindSetOwner       = "set_owner"
	KindSetController  = "set_controller"
	KindSetTerrain     = "set_terrain"
	KindSetExtension   = "set_extension"
	KindAddModifier    = "add_modifier"
	KindRemoveModifier = "remove_modifier"
	KindTransferOwner  = "transfer_owner"
	KindAnnex          = "annex"
)

// MaxAnnex bounds the entity list of a single annex command.
const MaxAnnex = 4096

var (
	ErrNoEntity      = errors.New("no such entity")
	ErrOwnerRange    = errors.New("owner out of range")
	ErrSameOwner     = errors.New("source and target owner are equal")
	ErrNothingOwned  = errors.New("owner holds no entities")
	ErrExpiryPassed  = errors.New("expiry tick already passed")
	ErrNoModifier    = errors.New("no such modifier")
	ErrEmptyList     = errors.New("empty entity list")
	ErrListTooLong   = errors.New("entity list too long")
	ErrDuplicateItem = errors.New("entity listed twice")
)

// Command is the command type every kind in this package implements.
type Command = command.Command[*State]

func checkEntity(s *State, id ecs.EntityID) error {
	if !s.Entities.Has(id) {
		return fmt.Errorf("%w: %d", ErrNoEntity, id)
	}
	return nil
}

func checkOwner(s *State, owner ecs.OwnerID) error {
	if int(owner) >= s.Entities.MaxOwners() {
		return fmt.Errorf("%w: %d", ErrOwnerRange, owner)
	}
	return nil
}

// mustApply reports a store error that validation should have ruled out.
func mustApply(s *State, kind string, err error) {
	if err != nil {
		contract.Violation(s.log, "validated command failed",
			zap.String("kind", kind), zap.Error(err))
	}
}

// SetOwner transfers one entity.
type SetOwner struct {
	Entity ecs.EntityID
	Owner  ecs.OwnerID
}

func (c SetOwner) Kind() string { return KindSetOwner }

func (c SetOwner) Validate(s *State) error {
	if err := checkEntity(s, c.Entity); err != nil {
		return err
	}
	return checkOwner(s, c.Owner)
}

func (c SetOwner) Execute(s *State) {
	mustApply(s, c.Kind(), s.Entities.SetOwner(c.Entity, c.Owner))
}

func (c SetOwner) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(4)
	w.U16(uint16(c.Entity))
	w.U16(uint16(c.Owner))
	return w.Bytes(), nil
}

func decodeSetOwner(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := SetOwner{Entity: ecs.EntityID(r.U16()), Owner: ecs.OwnerID(r.U16())}
	return c, r.Done()
}

// SetController changes who occupies an entity.
type SetController struct {
	Entity     ecs.EntityID
	Controller ecs.OwnerID
}

func (c SetController) Kind() string { return KindSetController }

func (c SetController) Validate(s *State) error {
	if err := checkEntity(s, c.Entity); err != nil {
		return err
	}
	return checkOwner(s, c.Controller)
}

func (c SetController) Execute(s *State) {
	mustApply(s, c.Kind(), s.Entities.SetController(c.Entity, c.Controller))
}

func (c SetController) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(4)
	w.U16(uint16(c.Entity))
	w.U16(uint16(c.Controller))
	return w.Bytes(), nil
}

func decodeSetController(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := SetController{Entity: ecs.EntityID(r.U16()), Controller: ecs.OwnerID(r.U16())}
	return c, r.Done()
}

type SetTerrain struct {
	Entity  ecs.EntityID
	Terrain ecs.TerrainClass
}

func (c SetTerrain) Kind() string { return KindSetTerrain }

func (c SetTerrain) Validate(s *State) error { return checkEntity(s, c.Entity) }

func (c SetTerrain) Execute(s *State) {
	mustApply(s, c.Kind(), s.Entities.SetTerrain(c.Entity, c.Terrain))
}

func (c SetTerrain) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(4)
	w.U16(uint16(c.Entity))
	w.U16(uint16(c.Terrain))
	return w.Bytes(), nil
}

func decodeSetTerrain(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := SetTerrain{Entity: ecs.EntityID(r.U16()), Terrain: ecs.TerrainClass(r.U16())}
	return c, r.Done()
}

type SetExtension struct {
	Entity ecs.EntityID
	Handle uint16
}

func (c SetExtension) Kind() string { return KindSetExtension }

func (c SetExtension) Validate(s *State) error { return checkEntity(s, c.Entity) }

func (c SetExtension) Execute(s *State) {
	mustApply(s, c.Kind(), s.Entities.SetExtension(c.Entity, c.Handle))
}

func (c SetExtension) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(4)
	w.U16(uint16(c.Entity))
	w.U16(c.Handle)
	return w.Bytes(), nil
}

func decodeSetExtension(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := SetExtension{Entity: ecs.EntityID(r.U16()), Handle: r.U16()}
	return c, r.Done()
}

// AddModifier attaches or replaces the modifier (Type, Source) on Scope.
type AddModifier struct {
	Scope  modifier.Scope
	Type   modifier.TypeID
	Value  modifier.Value
	Source uint32
	Expiry uint64 // 0 never expires
}

func (c AddModifier) Kind() string { return KindAddModifier }

func (c AddModifier) Validate(s *State) error {
	if err := validateScope(s, c.Scope); err != nil {
		return err
	}
	if c.Expiry != 0 && c.Expiry <= s.tick {
		return fmt.Errorf("%w: %d <= %d", ErrExpiryPassed, c.Expiry, s.tick)
	}
	return s.Modifiers.CanAdd(c.Scope, c.Type, c.Source)
}

func (c AddModifier) Execute(s *State) {
	mustApply(s, c.Kind(), s.Modifiers.AddModifier(c.Scope, c.Type, c.Value, c.Source, c.Expiry))
}

func (c AddModifier) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(41)
	writeScope(w, c.Scope)
	w.U16(uint16(c.Type))
	w.U32(c.Source)
	w.I64(c.Value.Base.Raw())
	w.I64(c.Value.Add.Raw())
	w.I64(c.Value.Mul.Raw())
	w.U64(c.Expiry)
	return w.Bytes(), nil
}

func decodeAddModifier(b []byte) (Command, error) {
	r := wire.NewReader(b)
	var c AddModifier
	c.Scope = readScope(r)
	c.Type = modifier.TypeID(r.U16())
	c.Source = r.U32()
	c.Value.Base = fixed.Fixed(r.I64())
	c.Value.Add = fixed.Fixed(r.I64())
	c.Value.Mul = fixed.Fixed(r.I64())
	c.Expiry = r.U64()
	return c, r.Done()
}

type RemoveModifier struct {
	Scope  modifier.Scope
	Type   modifier.TypeID
	Source uint32
}

func (c RemoveModifier) Kind() string { return KindRemoveModifier }

func (c RemoveModifier) Validate(s *State) error {
	if !s.Modifiers.Has(c.Scope, c.Type, c.Source) {
		return fmt.Errorf("%w: %s type %d source %d", ErrNoModifier, c.Scope, c.Type, c.Source)
	}
	return nil
}

func (c RemoveModifier) Execute(s *State) {
	s.Modifiers.RemoveModifier(c.Scope, c.Type, c.Source)
}

func (c RemoveModifier) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(9)
	writeScope(w, c.Scope)
	w.U16(uint16(c.Type))
	w.U32(c.Source)
	return w.Bytes(), nil
}

func decodeRemoveModifier(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := RemoveModifier{Scope: readScope(r)}
	c.Type = modifier.TypeID(r.U16())
	c.Source = r.U32()
	return c, r.Done()
}

func validateScope(s *State, sc modifier.Scope) error {
	switch sc.Kind {
	case modifier.ScopeGlobal:
		return nil
	case modifier.ScopeOwner:
		if sc.ID == uint16(ecs.Unowned) {
			return fmt.Errorf("%w: %s", modifier.ErrUnknownScope, sc)
		}
		return checkOwner(s, ecs.OwnerID(sc.ID))
	case modifier.ScopeEntity:
		return checkEntity(s, ecs.EntityID(sc.ID))
	}
	return fmt.Errorf("%w: %s", modifier.ErrUnknownScope, sc)
}

func writeScope(w *wire.Writer, sc modifier.Scope) {
	w.U8(uint8(sc.Kind))
	w.U16(sc.ID)
}

func readScope(r *wire.Reader) modifier.Scope {
	return modifier.Scope{Kind: modifier.ScopeKind(r.U8()), ID: r.U16()}
}

// TransferOwner hands every entity of From to To. Controllers that matched
// From follow the owner.
type TransferOwner struct {
	From ecs.OwnerID
	To   ecs.OwnerID
}

func (c TransferOwner) Kind() string { return KindTransferOwner }

func (c TransferOwner) Validate(s *State) error {
	if c.From == c.To {
		return ErrSameOwner
	}
	if err := checkOwner(s, c.To); err != nil {
		return err
	}
	if c.From == ecs.Unowned || s.Entities.Owners().CountOf(c.From) == 0 {
		return fmt.Errorf("%w: %d", ErrNothingOwned, c.From)
	}
	return nil
}

func (c TransferOwner) Execute(s *State) {
	// SetOwner edits the bucket being walked; iterate a copy.
	ids := s.Entities.Owners().AppendEntitiesOf(nil, c.From)
	for _, id := range ids {
		if ctrl, _ := s.Entities.Controller(id); ctrl == c.From {
			mustApply(s, c.Kind(), s.Entities.SetController(id, c.To))
		}
		mustApply(s, c.Kind(), s.Entities.SetOwner(id, c.To))
	}
}

func (c TransferOwner) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(4)
	w.U16(uint16(c.From))
	w.U16(uint16(c.To))
	return w.Bytes(), nil
}

func decodeTransferOwner(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := TransferOwner{From: ecs.OwnerID(r.U16()), To: ecs.OwnerID(r.U16())}
	return c, r.Done()
}

// Annex gives Owner both ownership and control of every listed entity.
type Annex struct {
	Owner    ecs.OwnerID
	Entities []ecs.EntityID
}

func (c Annex) Kind() string { return KindAnnex }

// detach returns cmd with no memory shared with the caller, so the command
// executed is the one that was encoded at submission.
func detach(cmd Command) Command {
	switch c := cmd.(type) {
	case Annex:
		c.Entities = slices.Clone(c.Entities)
		return c
	case *Annex:
		cp := *c
		cp.Entities = slices.Clone(c.Entities)
		return cp
	}
	return cmd
}

func (c Annex) Validate(s *State) error {
	if err := checkOwner(s, c.Owner); err != nil {
		return err
	}
	switch {
	case len(c.Entities) == 0:
		return ErrEmptyList
	case len(c.Entities) > MaxAnnex:
		return fmt.Errorf("%w: %d > %d", ErrListTooLong, len(c.Entities), MaxAnnex)
	}
	seen := make(map[ecs.EntityID]struct{}, len(c.Entities))
	for _, id := range c.Entities {
		if err := checkEntity(s, id); err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateItem, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (c Annex) Execute(s *State) {
	for _, id := range c.Entities {
		mustApply(s, c.Kind(), s.Entities.SetOwner(id, c.Owner))
		mustApply(s, c.Kind(), s.Entities.SetController(id, c.Owner))
	}
}

func (c Annex) MarshalBinary() ([]byte, error) {
	if len(c.Entities) > MaxAnnex {
		return nil, fmt.Errorf("%w: %d", ErrListTooLong, len(c.Entities))
	}
	w := wire.NewWriter(4 + 2*len(c.Entities))
	w.U16(uint16(c.Owner))
	w.U16(uint16(len(c.Entities)))
	for _, id := range c.Entities {
		w.U16(uint16(id))
	}
	return w.Bytes(), nil
}

func decodeAnnex(b []byte) (Command, error) {
	r := wire.NewReader(b)
	c := Annex{Owner: ecs.OwnerID(r.U16())}
	n := int(r.U16())
	if n > MaxAnnex {
		return nil, fmt.Errorf("%w: %d", ErrListTooLong, n)
	}
	c.Entities = make([]ecs.EntityID, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		c.Entities = append(c.Entities, ecs.EntityID(r.U16()))
	}
	return c, r.Done()
}

// RegisterBuiltins adds a decoder for every built-in kind.
func RegisterBuiltins(reg *command.Registry[*State]) error {
	decoders := []struct {
		kind string
		dec  command.Decoder[*State]
	}{
		{KindSetOwner, decodeSetOwner},
		{KindSetController, decodeSetController},
		{KindSetTerrain, decodeSetTerrain},
		{KindSetExtension, decodeSetExtension},
		{KindAddModifier, decodeAddModifier},
		{KindRemoveModifier, decodeRemoveModifier},
		{KindTransferOwner, decodeTransferOwner},
		{KindAnnex, decodeAnnex},
	}
	for _, d := range decoders {
		if err := reg.Register(d.kind, d.dec); err != nil {
			return err
		}
	}
	return nil
}
