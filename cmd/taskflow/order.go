package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/pipeline"
	cli "github.com/urfave/cli/v3"
)

func NewOrderCommand() *cli.Command {
	return &cli.Command{
		Name:    "order",
		Aliases: []string{"o"},
		Usage:   "Print the execution order of a pipeline definition",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Pipeline definition file (YAML or JSON)",
				Required: true,
				Sources:  cli.EnvVars("PIPELINE_FILE"),
			},
			&cli.BoolFlag{
				Name:  "dependencies",
				Usage: "Also list the transitive dependencies of every task",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskflow").With("action", "order")

			env, err := newEnvironment(ctx, command, logger)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			p, _, _, err := env.load(ctx, command.String("file"))
			if err != nil {
				return err
			}

			return printOrder(os.Stdout, p, command.Bool("dependencies"))
		},
	}
}

func printOrder(w io.Writer, p *pipeline.Pipeline, withDependencies bool) error {
	order, err := p.ExecutionOrder()
	if err != nil {
		return err
	}

	for i, name := range order {
		if !withDependencies {
			_, _ = fmt.Fprintf(w, "%d. %s\n", i+1, name)

			continue
		}

		deps := p.TaskDependencies(name)
		if len(deps) == 0 {
			_, _ = fmt.Fprintf(w, "%d. %s\n", i+1, name)

			continue
		}

		_, _ = fmt.Fprintf(w, "%d. %s <- %s\n", i+1, name, strings.Join(deps, ", "))
	}

	return nil
}
