package commands

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried on command errors so hosts can branch on the failure
// class without matching message strings.
const (
	codeValidationFailed = "COMMAND_VALIDATION_FAILED"
	codeContextCanceled  = "COMMAND_CONTEXT_CANCELED"
	codeContextTimeout   = "COMMAND_CONTEXT_TIMEOUT"
	codeContextError     = "COMMAND_CONTEXT_ERROR"
	codeExecutionFailed  = "COMMAND_EXECUTION_FAILED"
)

func wrapValidationError(err error) error {
	return tagError(err, goerrors.CategoryValidation, "command message rejected", codeValidationFailed)
}

func wrapContextError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return tagError(err, goerrors.CategoryCommand, "command cancelled", codeContextCanceled)
	case errors.Is(err, context.DeadlineExceeded):
		return tagError(err, goerrors.CategoryCommand, "command deadline exceeded", codeContextTimeout)
	default:
		return tagError(err, goerrors.CategoryCommand, "command context error", codeContextError)
	}
}

func wrapExecuteError(err error) error {
	return tagError(err, goerrors.CategoryCommand, "command execution failed", codeExecutionFailed)
}

// tagError categorises an error once; already-wrapped errors pass through so
// a handler delegating to another handler keeps the inner classification.
func tagError(err error, category goerrors.Category, message, code string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, category, message).WithTextCode(code)
}
