// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"gryffin/internal/planner"
	"gryffin/internal/prompter"
	"gryffin/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch prompt.txt and re-plan on every new prompt",
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

		promptPath := filepath.Join(targetDir, prompter.PromptFile)
		w, err := watcher.New(promptPath, func(ctx context.Context, prompt string) {
			eng.console.Successf("Detected change in prompt.txt")
			eng.console.Printf("  Prompt: %s", prompt)
			eng.console.Printf("  Running planner...")
			if err := eng.planner.Plan(ctx, prompt, targetDir, false, eng.insight); err != nil {
				eng.console.Failf("Planning failed: %v", err)
				return
			}
			eng.console.Successf("Architecture updated: %s", filepath.Join(targetDir, planner.ArchitectureFile))
			eng.console.Successf("Tasks updated: %s", filepath.Join(targetDir, planner.TasksFile))
		})
		if err != nil {
			return err
		}
		defer w.Close()

		eng.console.Printf("Watching %s for changes...", promptPath)
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
