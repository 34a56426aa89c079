package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/plotsync/plotsync/internal/types"
)

// FatalError writes an error message to stderr and exits with code 1.
// With --json the error goes out as a JSON object instead.
func FatalError(format string, args ...interface{}) {
	if jsonOutput {
		outputJSONError(fmt.Errorf(format, args...), "")
	}
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
//
// Example:
//
//	FatalErrorWithHint("project has no source", "Re-import it with 'plotsync import'")
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// fatalSync reports an engine error, with a hint for the cases a user can
// act on.
func fatalSync(err error) {
	var (
		formatErr  *types.FormatError
		notFound   *types.NotFoundError
		precondErr *types.PreconditionError
	)
	switch {
	case jsonOutput:
		outputJSONError(err, errorCode(err))
	case errors.As(err, &notFound) && notFound.Kind == "file":
		FatalErrorWithHint(err.Error(), "The source moved or was deleted; re-import it from its new location")
	case errors.As(err, &formatErr):
		FatalErrorWithHint(err.Error(), "Check that --format matches the source, or fix the file and retry")
	case errors.As(err, &precondErr):
		FatalErrorWithHint(err.Error(), "Wait for the other sync to finish, or check the project's source path")
	default:
		FatalError("%v", err)
	}
}

func errorCode(err error) string {
	var (
		formatErr  *types.FormatError
		notFound   *types.NotFoundError
		precondErr *types.PreconditionError
		storeErr   *types.StoreError
	)
	switch {
	case errors.As(err, &formatErr):
		return "format_error"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &precondErr):
		return "precondition_failed"
	case errors.As(err, &storeErr):
		return "store_error"
	}
	return ""
}
