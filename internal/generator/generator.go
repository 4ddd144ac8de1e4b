// Package generator defines the boundary contract between the translation
// worker and whatever machine translation backend a host wires in. The
// package owns the output contract (field shape per entity kind plus
// structural markup preservation) and fails closed when a backend's output
// violates it.
package generator

import (
	"context"
	"errors"

	"github.com/goliatone/go-translations/translation"
)

var (
	// ErrOutputShape marks generator output that fails the per-kind schema.
	ErrOutputShape = errors.New("generator: output violates the field contract")
	// ErrMarkupAltered marks output whose structural markup diverged from
	// the source.
	ErrMarkupAltered = errors.New("generator: output altered source markup structure")
	// ErrKindUnknown marks a request for an unrecognized entity kind.
	ErrKindUnknown = errors.New("generator: unknown entity kind")
)

// Request carries one translation invocation.
type Request struct {
	Kind         translation.EntityKind
	SourceLocale string
	TargetLocale string
	Fields       map[string]any
}

// Result carries the translated fields. Keys mirror the request's contract
// for the kind; extra keys are rejected by validation.
type Result struct {
	Fields map[string]any
}

// Generator produces a translated field set. Implementations wrap an LLM or
// MT service; the worker treats any error as a retryable task failure.
type Generator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Validate checks a generator result against the kind's field schema and,
// for markup-bearing kinds, verifies the output preserved the source's
// structural markup. Validation failures are terminal for the attempt; the
// worker records them like any other generation failure.
func Validate(req Request, res Result) error {
	if err := validateShape(req.Kind, res.Fields); err != nil {
		return err
	}
	return verifyMarkup(req.Kind, req.Fields, res.Fields)
}
