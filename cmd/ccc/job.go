package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jellywish/confidential-cat-counter/pkg/state"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect job records",
}

var jobGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Print the stored record of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobGet,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobGetCmd)
}

func runJobGet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		return err
	}

	_, store, closeRedis, err := redisClients(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	return printJob(ctx, cmd, store, args[0])
}

// printJob writes the record of id in store in the --output format.
func printJob(ctx context.Context, cmd *cobra.Command, store state.Store, id string) error {
	job, err := store.Get(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("job %s not found (it may have expired)", id)
	}
	if err != nil {
		return err
	}

	raw, err := job.Encode()
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	return writeOutput(cmd, fields)
}
