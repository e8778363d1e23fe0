package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newRootCommand(ctx context.Context) *cobra.Command {
	var configFlag string
	cmdCtx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "subweave",
		Short:         "Chunked subtitle generation and translation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := cmdCtx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetContext(ctx)
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newGenerateCommand(cmdCtx))
	rootCmd.AddCommand(newTranslateCommand(cmdCtx))
	rootCmd.AddCommand(newRegenerateCommand(cmdCtx))
	rootCmd.AddCommand(newArtifactsCommand(cmdCtx))
	rootCmd.AddCommand(newConfigCommand(cmdCtx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
