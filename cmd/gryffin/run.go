// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"gryffin/internal/prompter"
	"gryffin/internal/watcher"
)

var runPrompt string

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run and verify the project without regenerating plans",
	Long: `Run performs quick actions against an already-built project:
install, migrate, build, and smoke-probe whichever side of the project
the prompt names. Without --prompt the newest entry in prompt.txt is
used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir, err := targetFromArgs(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		prompt := runPrompt
		if prompt == "" {
			prompt = watcher.LatestPrompt(filepath.Join(targetDir, prompter.PromptFile))
		}
		if prompt == "" {
			return errors.New("no prompt given and prompt.txt is empty; pass --prompt")
		}

		eng, err := buildEngine(ctx, targetDir)
		if err != nil {
			return err
		}
		defer eng.shutdown(ctx)

		eng.orch.RunAction(ctx, prompt, targetDir)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "action prompt, e.g. \"start the backend\"")
	rootCmd.AddCommand(runCmd)
}
