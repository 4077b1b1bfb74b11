// Package cmd provides the CLI commands for Railguard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/railguard-io/railguard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "railguard",
	Short: "Railguard - guardrail policy engine for LLM gateways",
	Long: `Railguard is the policy and pipeline engine of an LLM gateway.

It resolves which guardrails apply to each request from inheritable
policies and scoped attachments, builds a sequential guardrail pipeline,
and executes it before and after upstream model calls.

Quick start:
  1. Create a config file: railguard.yaml
  2. Run: railguard start

Configuration:
  Config is loaded from railguard.yaml in the current directory,
  $HOME/.railguard/, or /etc/railguard/.

  Environment variables can override config values with the RAILGUARD_ prefix.
  Example: RAILGUARD_SERVER_ADDR=:9090

Commands:
  start       Start the policy engine server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./railguard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
