// Package main is the entry point for the Sentinel detection service.
package main

import (
	"context"
	"fmt"
	"os"

	"sentinel/bootstrap"
	"sentinel/cmd"
)

// run initializes and starts the Sentinel service.
func run(configPath string) error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

// runOnce runs a single evaluation cycle and exits. Useful for cron-style
// deployments and for smoke-testing a config.
func runOnce(configPath string) error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Shutdown()

	result, err := app.EvaluateOnce(ctx)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Printf("Evaluated %d rules: %d triggered, %d skipped, %d failed (%s)\n",
		result.RulesEvaluated, len(result.Triggers),
		result.RulesSkipped, result.RulesFailed, result.Duration)
	return nil
}

func main() {
	// CLI subcommand dispatch
	if len(os.Args) > 1 && os.Args[1] == "indicators" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		indicatorsCmd := cmd.NewIndicatorsCmd()
		if err := indicatorsCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	args := os.Args[1:]
	once := false
	if len(args) > 0 && args[0] == "evaluate" {
		once = true
		args = args[1:]
	}

	configPath := ""
	if len(args) > 1 && args[0] == "--config" {
		configPath = args[1]
	}

	var err error
	if once {
		err = runOnce(configPath)
	} else {
		err = run(configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}
