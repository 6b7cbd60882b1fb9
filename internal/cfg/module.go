package cfg

// Module is an ordered collection of functions, the unit the pass
// pipeline operates on.
type Module struct {
	Funcs []*Func
}
