package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jgivc/ftpstage/internal/app"
	"github.com/jgivc/ftpstage/internal/common"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var (
		args app.Args
		code = common.ExitOK
	)

	rootCmd := &cobra.Command{
		Use:   "ftpstage <trace-enabled> <name> <job-description>",
		Short: "Stage the input files of a task from its peer nodes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			traceEnabled, err := strconv.ParseBool(posArgs[0])
			if err != nil {
				return fmt.Errorf("cannot parse trace-enabled %q: %w", posArgs[0], err)
			}

			args.TraceEnabled = traceEnabled
			args.Name = posArgs[1]
			args.JobPath = posArgs[2]

			code = app.New(args).Run()

			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&args.ConfigPath, "config", "c", "ftpstage.yml", "Path to config file")
	rootCmd.Flags().StringVar(&args.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.SetArgs(argv)

	if err := rootCmd.Execute(); err != nil {
		return common.ExitUsage
	}

	return code
}
