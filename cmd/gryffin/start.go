// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"gryffin/internal/planner"
	"gryffin/internal/prompter"
)

var startCmd = &cobra.Command{
	Use:   "start [dir]",
	Short: "Capture a prompt, plan the project, and execute the plan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir, err := targetFromArgs(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		eng, err := buildEngine(ctx, targetDir)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		entry, err := prompter.Take(eng.console, targetDir)
		if err != nil {
			return err
		}

		eng.console.Printf("Generating architecture and tasks...")
		if err := eng.planner.Plan(ctx, entry.Prompt, targetDir, true, eng.insight); err != nil {
			if errors.Is(err, planner.ErrCancelled) {
				eng.console.Warnf("Planning cancelled")
				return nil
			}
			return err
		}

		if err := eng.orch.Run(ctx, targetDir); err != nil {
			return err
		}

		eng.console.Successf("Session complete!")
		eng.console.Printf("Prompt saved to: %s", entry.PromptPath)
		eng.console.Printf("Architecture saved to: %s", filepath.Join(targetDir, planner.ArchitectureFile))
		eng.console.Printf("Major tasks saved to: %s", filepath.Join(targetDir, planner.TasksFile))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
