package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/taskflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var ErrInvalidPipelines = errors.New("invalid pipelines found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate pipeline definitions without running them",
		ArgsUsage: "<file>...",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskflow").With("action", "validate")

			files := command.Args().Slice()
			if len(files) == 0 {
				return cli.Exit("at least one pipeline file is required", 2)
			}

			env, err := newEnvironment(ctx, command, logger)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			if invalid := validateFiles(ctx, env, os.Stdout, files); invalid > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidPipelines, invalid, len(files))
			}

			return nil
		},
	}
}

// validateFiles reports each file on w and returns how many are invalid.
func validateFiles(ctx context.Context, env *environment, w io.Writer, files []string) int {
	_, _ = fmt.Fprintln(w, "Pipeline Validation Results:")
	_, _ = fmt.Fprintln(w, "============================")

	invalid := 0

	for _, file := range files {
		_, _ = fmt.Fprintf(w, "\n%s\n", file)

		p, _, _, err := env.load(ctx, file)
		if err != nil {
			_, _ = fmt.Fprintf(w, "    INVALID: %v\n", err)
			invalid++

			continue
		}

		order, err := p.ExecutionOrder()
		if err != nil {
			_, _ = fmt.Fprintf(w, "    INVALID: %v\n", err)
			invalid++

			continue
		}

		_, _ = fmt.Fprintf(w, "    VALID: %s (%d tasks)\n", p.Name(), len(order))
	}

	_, _ = fmt.Fprintf(w, "\nValidation Summary:\n")
	_, _ = fmt.Fprintf(w, "  Total pipelines: %d\n", len(files))
	_, _ = fmt.Fprintf(w, "  Valid pipelines: %d\n", len(files)-invalid)
	_, _ = fmt.Fprintf(w, "  Invalid pipelines: %d\n", invalid)

	return invalid
}
