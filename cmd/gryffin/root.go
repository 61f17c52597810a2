// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gryffin/internal/config"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "gryffin",
	Short: "Autonomous build-and-fix execution engine",
	Long: `Gryffin turns a one-line prompt into a planned, executed, and
verified project. It generates an architecture and task list, executes
each task with bounded auto-retry and auto-fix loops, and finishes by
smoke-probing the result to prove it runs.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().String("model", "", "collaborator model (overrides gryffin.yaml and GRYFFIN_MODEL)")
	rootCmd.PersistentFlags().Bool("auto-run", false, "approve change sets and run verification without prompting")
	rootCmd.PersistentFlags().Bool("persist-servers", false, "keep verified dev servers running after probing")

	viper.SetEnvPrefix("GRYFFIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Gryffin version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version)
	},
}

// loadConfig reads gryffin.yaml plus environment overrides from the
// target directory, then applies any explicit CLI flags on top.
func loadConfig(targetDir string) (*config.Config, error) {
	cfg, err := config.Load(targetDir)
	if err != nil {
		return nil, err
	}
	if m := viper.GetString("model"); m != "" {
		cfg.Model.Default = m
	}
	flags := rootCmd.PersistentFlags()
	if flags.Changed("auto-run") {
		cfg.Execution.AutoRun, _ = flags.GetBool("auto-run")
	}
	if flags.Changed("persist-servers") {
		cfg.Execution.PersistServers, _ = flags.GetBool("persist-servers")
	}
	return cfg, nil
}

// targetFromArgs resolves the optional positional directory argument.
func targetFromArgs(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	return filepath.Abs(path)
}
