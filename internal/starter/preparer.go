package starter

// Preparer turns a control directory into a concrete launch Spec. It is the
// one shape the controller consumes; the adapters below normalize the other
// ways callers describe a process.
type Preparer interface {
	Prepare(controlDir string) (Spec, error)
}

// PrepareFunc adapts a function computing a Spec from the control directory.
type PrepareFunc func(controlDir string) (Spec, error)

func (f PrepareFunc) Prepare(controlDir string) (Spec, error) { return f(controlDir) }

// Static returns a Preparer that always yields spec.
func Static(spec Spec) Preparer {
	return PrepareFunc(func(string) (Spec, error) { return spec, nil })
}

// Legacy adapts a function returning a pattern and an argument vector. The
// resulting Spec uses default bounds.
func Legacy(fn func(controlDir string) (pattern string, args []string)) Preparer {
	return PrepareFunc(func(controlDir string) (Spec, error) {
		pattern, args := fn(controlDir)
		return Spec{Args: args, Pattern: pattern}, nil
	})
}
