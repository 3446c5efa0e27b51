package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/xprocess/internal/config"
	"github.com/loykin/xprocess/internal/process"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	xcmd := &command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createShowCommand(xcmd, &ShowFlags{}),
		createKillCommand(xcmd, &KillFlags{}),
		createEnsureCommand(xcmd, &EnsureFlags{}),
		createCleanLogsCommand(xcmd),
		createServeCommand(xcmd, &ServeFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "xprocess",
		Short: "Start, reuse and tear down external processes for test suites",
		Long: `xprocess manages named external processes under a root directory.
Each name owns a control directory holding the pid file and the log.

Examples:
  xprocess show                               # list every process under the root
  xprocess kill                               # terminate every process tree
  xprocess ensure --config=procs.toml         # start what is not running yet
  xprocess serve --addr=127.0.0.1:8080 --metrics`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.Root, "root", "", "root directory (default $XPROCESS_ROOT or the user cache dir)")
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (toml, yaml or json)")
	return root
}

func createShowCommand(xcmd *command, flags *ShowFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List processes under the root",
		Long: `List every control directory under the root with its pid, state and log.

Examples:
  xprocess show
  xprocess show --format=yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return xcmd.Show(cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Format, "format", "text", "output format: text, yaml or json")
	return cmd
}

func createKillCommand(xcmd *command, flags *KillFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate every process under the root",
		Long: `Terminate every listed process. Processes receive SIGTERM, leaves of the
tree first, and SIGKILL if they are still alive after the timeout.

Examples:
  xprocess kill
  xprocess kill --tree=false --timeout=5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return xcmd.Kill(cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Tree, "tree", true, "terminate descendants too")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", process.DefaultTerminateTimeout, "wait per signal stage")
	return cmd
}

func createEnsureCommand(xcmd *command, flags *EnsureFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Ensure the configured processes are running",
		Long: `Start every process of the config file that is not running yet and wait
for it to become ready. Running processes are reused. Prints "<pid> <log>"
per process.

Examples:
  xprocess ensure --config=procs.toml
  xprocess ensure --config=procs.toml --name=db --restart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return xcmd.Ensure(cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "only ensure this process")
	cmd.Flags().BoolVar(&flags.Restart, "restart", false, "terminate and relaunch running processes")
	return cmd
}

func createCleanLogsCommand(xcmd *command) *cobra.Command {
	return &cobra.Command{
		Use:   "clean-logs",
		Short: "Truncate every log under the root",
		RunE: func(cmd *cobra.Command, args []string) error {
			return xcmd.CleanLogs()
		},
	}
}

func createServeCommand(xcmd *command, flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the process API over HTTP",
		Long: `Serve list, status and terminate endpoints for the processes under the root.

Examples:
  xprocess serve --addr=127.0.0.1:8080 --base=/api --metrics
  xprocess serve --tls-dir=./certs --tls-autogen`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return xcmd.Serve(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Addr, "addr", "", "listen address (default "+config.DefaultServerAddr+")")
	cmd.Flags().StringVar(&flags.BasePath, "base", "", "base path of the API (default "+config.DefaultBasePath+")")
	cmd.Flags().BoolVar(&flags.Metrics, "metrics", false, "expose prometheus metrics on /metrics")
	cmd.Flags().StringVar(&flags.TLSCert, "tls-cert", "", "serve HTTPS with this certificate")
	cmd.Flags().StringVar(&flags.TLSKey, "tls-key", "", "private key of --tls-cert")
	cmd.Flags().StringVar(&flags.TLSDir, "tls-dir", "", "directory holding tls.crt and tls.key")
	cmd.Flags().BoolVar(&flags.TLSAutoGen, "tls-autogen", false, "generate a self-signed pair into --tls-dir if missing")
	return cmd
}
