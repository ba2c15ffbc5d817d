package domain

// Module is the capability interface concrete components implement in place
// of the original's virtual-method base classes (spec.md §9, Design Note 4).
type Module interface {
	OnStart() error
	OnTick(nowMS int64)
	OnShutdown()
}

// EventListener is the generic listener form of an event-bus subscription,
// for components that want one registration covering every event type they
// care about rather than one subscribe call per type.
type EventListener interface {
	OnEvent(event Event)
}
