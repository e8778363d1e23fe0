package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"subweave/internal/artifacts"
)

func newArtifactsCommand(cmdCtx *commandContext) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect the artifact store",
	}
	artifactsCmd.AddCommand(newArtifactsRunsCommand(cmdCtx))
	artifactsCmd.AddCommand(newArtifactsListCommand(cmdCtx))
	return artifactsCmd
}

func newArtifactsRunsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs stored")
				return nil
			}
			for _, runID := range runs {
				fmt.Fprintln(cmd.OutOrStdout(), runID)
			}
			return nil
		},
	}
}

func newArtifactsListCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <run-id>",
		Short: "List artifacts for one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no artifacts stored for run %s\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					strconv.Itoa(record.ChunkIndex),
					record.Stage,
					strconv.FormatInt(record.SizeBytes, 10),
					record.CreatedAt.Format("2006-01-02 15:04:05"),
					record.Hash[:12],
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Chunk", "Stage", "Bytes", "Created", "Hash"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func openStore(cmdCtx *commandContext) (*artifacts.Store, error) {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Artifacts.Enabled {
		return nil, fmt.Errorf("artifact store is disabled; enable [artifacts] in config")
	}
	return artifacts.Open(cfg)
}
