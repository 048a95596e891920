package equation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/haptable/haptable/internal/scene"
)

// builtin formulas, scaled so each stays feelable inside the default
// ±300mm x range and ±300mm depth band.
var builtins = map[string]struct {
	display string
	fn      scene.FunctionFunc
}{
	"parabola": {
		display: "y = x^2/100",
		fn:      func(x float64) (float64, error) { return x * x / 100, nil },
	},
	"sine": {
		display: "y = 100*sin(x/50)",
		fn:      func(x float64) (float64, error) { return 100 * math.Sin(x/50), nil },
	},
	"cosine": {
		display: "y = 80*cos(x/30)",
		fn:      func(x float64) (float64, error) { return 80 * math.Cos(x/30), nil },
	},
	"line": {
		display: "y = 2*x",
		fn:      func(x float64) (float64, error) { return 2 * x, nil },
	},
	"abs": {
		display: "y = |x|/2",
		fn:      func(x float64) (float64, error) { return math.Abs(x) / 2, nil },
	},
	"cubic": {
		display: "y = x^3/10000",
		fn:      func(x float64) (float64, error) { return x * x * x / 10000, nil },
	},
}

// Builtins returns the builtin formula names, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeywordParser resolves builtin formula names.
type KeywordParser struct{}

// NewKeywordParser returns a parser over the builtin library.
func NewKeywordParser() *KeywordParser { return &KeywordParser{} }

// Parse implements Parser. Matching is case-insensitive on the whole
// trimmed input.
func (p *KeywordParser) Parse(_ context.Context, text string) (Result, error) {
	name := strings.ToLower(strings.TrimSpace(text))
	b, ok := builtins[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: no builtin named %q", ErrUnparsable, name)
	}
	return Result{Name: name, Display: b.display, Fn: b.fn}, nil
}
