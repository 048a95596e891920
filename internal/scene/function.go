package scene

// Function is the contract every curve's defining function satisfies:
// one evaluation method over one real variable, in millimeters.
// Builtin formulas and externally parsed expressions share it, so the
// scene never cares where a function came from. Implementations may
// return an error or a non-finite value for inputs outside their
// domain; the sampler skips such points.
type Function interface {
	Eval(x float64) (float64, error)
}

// FunctionFunc adapts an ordinary function to the Function interface.
type FunctionFunc func(x float64) (float64, error)

// Eval implements Function.
func (f FunctionFunc) Eval(x float64) (float64, error) {
	return f(x)
}
