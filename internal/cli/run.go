package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Run is the process entrypoint suitable for black-box tests. It accepts
// the argument slice (excluding argv[0]) and returns the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	exitCode := ExitSuccess
	root := NewRootCommand(ctx, stdout, stderr, &exitCode)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "awacsweep: %v\n", err)
		if exitCode == ExitSuccess {
			exitCode = ExitCode(err)
			if strings.HasPrefix(err.Error(), "unknown command") {
				exitCode = ExitInvalidInvocation
			}
		}
	}
	return exitCode
}
