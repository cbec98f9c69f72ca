/*
Package cli provides helpers shared by the ccc commands.

Output Formatting:

Commands that print records accept --output text|json:

	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), job)

Signal Handling:

The worker stops taking jobs on SIGINT/SIGTERM and exits once the job in
progress is persisted:

	ctx, stop := cli.SetupSignalHandler(logger)
	defer stop()

Exit Codes:

ExitCode maps startup refusals (invalid configuration, bundle signature
mismatch, failed attestation) to 2 and every other error to 1.
*/
package cli
