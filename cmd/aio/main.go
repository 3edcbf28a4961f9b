package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/aio/internal/config"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	method     string
	bwLimitStr string
	logFile    string
	verbose    bool
	quiet      bool
}

// sizeValue is a pflag.Value that accepts human-readable sizes (4K, 1.5M).
type sizeValue int64

var _ pflag.Value = (*sizeValue)(nil)

func newSizeValue(p *int64) *sizeValue { return (*sizeValue)(p) }

func (v *sizeValue) String() string { return strconv.FormatInt(int64(*v), 10) }
func (*sizeValue) Type() string     { return "size" }

func (v *sizeValue) Set(s string) error {
	n, err := config.ParseSize(s)
	if err != nil {
		return err
	}
	*v = sizeValue(n)
	return nil
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		g           globalFlags
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:   "aio",
		Short: "Batched asynchronous file I/O: copy, read and write byte ranges",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.NoArgs(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "aio %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.method, "method", "read_write", "I/O method: read_write, copy_file_range or io_uring")
	pf.StringVar(&g.bwLimitStr, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	pf.StringVar(&g.logFile, "log", "", "write structured JSON log to FILE")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.AddCommand(newCopyCmd(&g))
	rootCmd.AddCommand(newWriteCmd(&g))
	rootCmd.AddCommand(newReadCmd(&g))
	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdin, stdout, stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	cmd *cobra.Command,
	defaults config.DefaultsConfig,
	g *globalFlags,
	verify *bool,
) {
	if !cmd.Flags().Changed("method") && defaults.Method != nil {
		g.method = *defaults.Method
	}
	if !cmd.Flags().Changed("bwlimit") && defaults.BWLimit != nil {
		g.bwLimitStr = *defaults.BWLimit
	}
	if verify != nil && !cmd.Flags().Changed("verify") && defaults.Verify != nil {
		*verify = *defaults.Verify
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
