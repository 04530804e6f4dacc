package system

// Phase defines execution ordering within a single logical tick.
type Phase int

const (
	PhaseCommand Phase = iota // 0: apply queued commands
	PhaseUpdate               // 1: time-driven rules (modifier expiry)
	PhasePublish              // 2: announce the finished tick
	PhasePersist              // 3: journal flush + snapshot archive
)

func (p Phase) String() string {
	switch p {
	case PhaseCommand:
		return "command"
	case PhaseUpdate:
		return "update"
	case PhasePublish:
		return "publish"
	case PhasePersist:
		return "persist"
	}
	return "phase?"
}

// System is one step of the tick pipeline.
type System interface {
	Phase() Phase
	Update(tick uint64)
}

// Func adapts a plain function into a System.
type Func struct {
	P  Phase
	Fn func(tick uint64)
}

func (f Func) Phase() Phase       { return f.P }
func (f Func) Update(tick uint64) { f.Fn(tick) }
