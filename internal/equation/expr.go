package equation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Knetic/govaluate"
)

// ExpressionParser compiles explicit formulas in one variable x, e.g.
// "x^2/100" or "y = 100*sin(x/50)". Multiplication must be explicit
// ("2*x", not "2x"). "^" means exponentiation.
type ExpressionParser struct {
	functions map[string]govaluate.ExpressionFunction
}

// NewExpressionParser returns a parser with the standard math
// functions registered: sin, cos, tan, sqrt, abs, exp, log, log10,
// pow, floor, ceil, min, max.
func NewExpressionParser() *ExpressionParser {
	p := &ExpressionParser{functions: make(map[string]govaluate.ExpressionFunction)}
	reg1 := func(name string, fn func(float64) float64) {
		p.functions[name] = func(args ...interface{}) (interface{}, error) {
			vals, err := floatArgs(name, 1, args)
			if err != nil {
				return nil, err
			}
			return fn(vals[0]), nil
		}
	}
	reg2 := func(name string, fn func(float64, float64) float64) {
		p.functions[name] = func(args ...interface{}) (interface{}, error) {
			vals, err := floatArgs(name, 2, args)
			if err != nil {
				return nil, err
			}
			return fn(vals[0], vals[1]), nil
		}
	}
	reg1("sin", math.Sin)
	reg1("cos", math.Cos)
	reg1("tan", math.Tan)
	reg1("sqrt", math.Sqrt)
	reg1("abs", math.Abs)
	reg1("exp", math.Exp)
	reg1("log", math.Log)
	reg1("log10", math.Log10)
	reg1("floor", math.Floor)
	reg1("ceil", math.Ceil)
	reg2("pow", math.Pow)
	reg2("min", math.Min)
	reg2("max", math.Max)
	return p
}

func floatArgs(name string, n int, args []interface{}) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", name, n, len(args))
	}
	vals := make([]float64, n)
	for i, a := range args {
		v, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("%s argument %d is %T, want number", name, i+1, a)
		}
		vals[i] = v
	}
	return vals, nil
}

// Parse implements Parser. It compiles the formula and probes it at
// one point so unknown variables surface here instead of mid-session.
func (p *ExpressionParser) Parse(_ context.Context, text string) (Result, error) {
	formula, err := normalizeFormula(text)
	if err != nil {
		return Result{}, err
	}

	// govaluate reserves "^" for XOR; exponentiation is "**".
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(
		strings.ReplaceAll(formula, "^", "**"), p.functions)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	fn := &exprFunction{expr: compiled}
	if _, err := probe(fn); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	return Result{
		Name:    shortName(formula),
		Display: "y = " + formula,
		Fn:      fn,
	}, nil
}

// normalizeFormula lowercases, removes spaces, and strips an optional
// "y=" or "f(x)=" head.
func normalizeFormula(text string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, " ", "")
	for _, prefix := range []string{"y=", "f(x)=", "z="} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty formula", ErrUnparsable)
	}
	return s, nil
}

func shortName(formula string) string {
	if len(formula) <= 20 {
		return formula
	}
	return formula[:17] + "..."
}

// probe evaluates at x=1 to catch unknown parameters and non-numeric
// results at parse time. Domain errors like sqrt(-1) return NaN, not
// an error, and are handled by the sampler.
func probe(fn *exprFunction) (float64, error) {
	return fn.Eval(1)
}

type exprFunction struct {
	expr *govaluate.EvaluableExpression
}

func (f *exprFunction) Eval(x float64) (float64, error) {
	v, err := f.expr.Evaluate(map[string]interface{}{"x": x})
	if err != nil {
		return 0, err
	}
	y, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expression returned %T, want number", v)
	}
	return y, nil
}
