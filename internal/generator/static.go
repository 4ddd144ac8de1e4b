package generator

import (
	"context"

	"github.com/goliatone/go-translations/translation"
)

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Translate(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// StaticGenerator is a deterministic pseudo-translator for tests and the
// example binary. It tags text fields with the target locale and copies
// markup-bearing bodies through untouched, so its output always satisfies
// the contract checks.
type StaticGenerator struct{}

func (StaticGenerator) Translate(_ context.Context, req Request) (Result, error) {
	fields := make(map[string]any, len(req.Fields))
	for key, value := range req.Fields {
		fields[key] = value
	}

	tag := func(key string) {
		if value, ok := fields[key].(string); ok && value != "" {
			fields[key] = "[" + req.TargetLocale + "] " + value
		}
	}

	switch req.Kind {
	case translation.KindSimple:
		tag("name")
		tag("description")
	case translation.KindLongform:
		tag("title")
	}
	return Result{Fields: fields}, nil
}
