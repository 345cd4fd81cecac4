package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ExitError ends the process with Code. Any message has already been printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func ExecuteContext(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	return execute(ctx, args, out, errOut, defaultDeps())
}

func execute(ctx context.Context, args []string, out io.Writer, errOut io.Writer, d deps) int {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	root := newRootCmd(d)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(errOut, "error: %v\n", err)
	return 1
}
