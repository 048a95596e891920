// Package equation turns operator text into curve functions.
//
// Three parsers share one contract: a keyword parser over a small
// builtin formula library, an expression compiler for explicit
// formulas like "x^2/100", and a remote parser that defers to an
// external service for free-form language. The scene layer consumes
// the result only as an opaque function of x.
package equation

import (
	"context"
	"errors"
	"fmt"

	"github.com/haptable/haptable/internal/scene"
)

// ErrUnparsable marks input no parser could turn into a function. It
// is surfaced to the operator and never crashes the loop.
var ErrUnparsable = errors.New("unparsable input")

// Result is a parsed curve definition: a short name for listings, a
// display string like "y = x^2/100", and the function itself.
type Result struct {
	Name    string
	Display string
	Fn      scene.Function
}

// Parser turns one line of operator text into a curve definition.
type Parser interface {
	Parse(ctx context.Context, text string) (Result, error)
}

// Chain tries parsers in order and returns the first success.
type Chain []Parser

// Parse implements Parser.
func (c Chain) Parse(ctx context.Context, text string) (Result, error) {
	var errs []error
	for _, p := range c {
		res, err := p.Parse(ctx, text)
		if err == nil {
			return res, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return Result{}, fmt.Errorf("%w: empty parser chain", ErrUnparsable)
	}
	return Result{}, fmt.Errorf("no parser accepted %q: %w", text, errors.Join(errs...))
}

// NewDefaultParser builds the standard chain: builtin keywords, then
// the expression compiler, then (when remoteURL is set) the remote
// service.
func NewDefaultParser(remoteURL string) Parser {
	chain := Chain{NewKeywordParser(), NewExpressionParser()}
	if remoteURL != "" {
		chain = append(chain, NewRemoteParser(remoteURL))
	}
	return chain
}
