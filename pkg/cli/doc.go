/*
Package cli provides helpers shared by the sentinel commands.

Output:

Commands that print results accept --format text|json:

	format, err := cli.ParseFormat(flag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Signals:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Errors returned from commands are mapped to exit codes by ExitCode.
*/
package cli
