package event

// TickCompleted is emitted once the tick pipeline has finished every phase.
type TickCompleted struct {
	Tick       uint64
	Generation uint64
	Executed   int
	Rejected   int
}
