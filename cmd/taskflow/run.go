package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Execute a pipeline definition once and print its execution record",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Pipeline definition file (YAML or JSON)",
				Required: true,
				Sources:  cli.EnvVars("PIPELINE_FILE"),
			},
			&cli.StringSliceFlag{
				Name:    "context",
				Aliases: []string{"c"},
				Usage:   "Initial context entry as key=value, repeatable",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("taskflow").With("action", "run")

			overrides, err := parseContextValues(command.StringSlice("context"))
			if err != nil {
				return err
			}

			env, err := newEnvironment(ctx, command, logger)
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			p, _, execCtx, err := env.load(ctx, command.String("file"))
			if err != nil {
				return err
			}

			for k, v := range overrides {
				execCtx.Set(k, v)
			}

			record, err := p.Execute(ctx, execCtx)
			if err != nil {
				return err
			}

			if err := writeRecord(os.Stdout, record); err != nil {
				return err
			}

			if !record.Succeeded() {
				return cli.Exit(fmt.Sprintf("pipeline %q failed at task %q", record.PipelineName, record.FailedTask), 1)
			}

			return nil
		},
	}
}

func writeRecord(w io.Writer, record *models.ExecutionRecord) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(record)
}
