package script

// HandlerFunc is a native Go event handler.
type HandlerFunc func(rt Runtime, ev Event) error

// NativeProgram is a Program written directly in Go. Handler authors are
// responsible for the checkpoint contract.
type NativeProgram struct {
	name     string
	handlers map[EventKind]HandlerFunc
}

// NewProgram builds a native program from a handler table. The table is
// copied.
func NewProgram(name string, handlers map[EventKind]HandlerFunc) *NativeProgram {
	hs := make(map[EventKind]HandlerFunc, len(handlers))
	for k, h := range handlers {
		if h != nil {
			hs[k] = h
		}
	}
	return &NativeProgram{name: name, handlers: hs}
}

// Name implements Program.
func (p *NativeProgram) Name() string {
	return p.name
}

// Instantiate implements Program. Native programs keep no per-instance state
// beyond the runtime binding.
func (p *NativeProgram) Instantiate(rt Runtime) (Executable, error) {
	return &nativeExecutable{program: p, rt: rt}, nil
}

type nativeExecutable struct {
	program *NativeProgram
	rt      Runtime
}

func (x *nativeExecutable) Handles(kind EventKind) bool {
	_, ok := x.program.handlers[kind]
	return ok
}

func (x *nativeExecutable) Handle(ev Event) error {
	h, ok := x.program.handlers[ev.Kind]
	if !ok {
		return nil
	}
	return h(x.rt, ev)
}

func (x *nativeExecutable) Close() {}
