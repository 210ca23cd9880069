package emit

// Null discards every event. It is the engine's default emitter, so a
// deployment that wants no observability pays nothing for it.
type Null struct{}

func (Null) Emit(Event) {}

func (Null) Close() error { return nil }
