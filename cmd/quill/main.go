package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "quill.yaml"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quill",
		Short:         "Quill — serialized fiction lifecycle orchestrator",
		Long:          "Quill creates, continues and completes serialized works one validated unit at a time.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to Quill config file")
	cmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", cmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("json", cmd.PersistentFlags().Lookup("json"))

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd(v))
	cmd.AddCommand(newRunCmd(v))
	cmd.AddCommand(newStatusCmd(v))
	cmd.AddCommand(newWorkCmd(v))
	cmd.AddCommand(newDaemonCmd(v))
	cmd.AddCommand(newServeCmd(v))
	cmd.AddCommand(newExportCmd(v))
	cmd.AddCommand(newImportCmd(v))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quill %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	stop()
	os.Exit(code)
}
