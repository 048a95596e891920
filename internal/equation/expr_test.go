package equation

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressionParserFormulas(t *testing.T) {
	t.Parallel()
	p := NewExpressionParser()
	ctx := context.Background()

	tests := []struct {
		name    string
		text    string
		display string
		x, want float64
	}{
		{"power", "x^2/100", "y = x^2/100", 30, 9},
		{"prefix stripped", "y = 2 * x", "y = 2*x", 21, 42},
		{"fx prefix", "f(x) = x + 10", "y = x+10", 5, 15},
		{"sine", "100*sin(x/50)", "y = 100*sin(x/50)", 0, 0},
		{"pow function", "pow(x, 3)/10000", "y = pow(x,3)/10000", 10, 0.1},
		{"abs function", "abs(x)/2", "y = abs(x)/2", -50, 25},
		{"nested", "max(0, x - 100)", "y = max(0,x-100)", 150, 50},
		{"unary minus", "-x/2", "y = -x/2", 100, -50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := p.Parse(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.display, res.Display)
			assert.InDelta(t, tt.want, evalAt(t, res, tt.x), 1e-12)
		})
	}
}

func TestExpressionParserRejects(t *testing.T) {
	t.Parallel()
	p := NewExpressionParser()
	ctx := context.Background()

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"spaces only", "   "},
		{"garbage", "@@@"},
		{"unknown variable", "x + t"},
		{"unknown function", "spline(x)"},
		{"boolean result", "x > 1"},
		{"natural language", "draw a wave"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Parse(ctx, tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnparsable)
		})
	}
}

func TestExpressionParserDomainErrorsDeferred(t *testing.T) {
	t.Parallel()
	p := NewExpressionParser()

	// sqrt is negative over part of the domain; that is the sampler's
	// problem, not a parse failure.
	res, err := p.Parse(context.Background(), "sqrt(x - 100)")
	require.NoError(t, err)

	y, err := res.Fn.Eval(0)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(y), "sqrt(-100) = %f, want NaN", y)

	y, err = res.Fn.Eval(200)
	require.NoError(t, err)
	assert.InDelta(t, 10, y, 1e-12)
}

func TestExpressionParserShortName(t *testing.T) {
	t.Parallel()
	p := NewExpressionParser()

	res, err := p.Parse(context.Background(), "x^2/100")
	require.NoError(t, err)
	assert.Equal(t, "x^2/100", res.Name)

	long := "x^2/100 + 100*sin(x/50) + 80*cos(x/30)"
	res, err = p.Parse(context.Background(), long)
	require.NoError(t, err)
	assert.Len(t, res.Name, 20)
	assert.Equal(t, "...", res.Name[17:])
}

func TestChainFallsThrough(t *testing.T) {
	t.Parallel()
	p := NewDefaultParser("")
	ctx := context.Background()

	// Keyword hit.
	res, err := p.Parse(ctx, "sine")
	require.NoError(t, err)
	assert.Equal(t, "sine", res.Name)

	// Not a keyword, compiles as a formula.
	res, err = p.Parse(ctx, "x^2/100")
	require.NoError(t, err)
	assert.InDelta(t, 9.0, evalAt(t, res, 30), 1e-12)

	// Nothing accepts it.
	_, err = p.Parse(ctx, "@@@")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparsable)
}
