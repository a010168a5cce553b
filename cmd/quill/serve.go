package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/dashboard"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only JSON dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.analyzer(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Dashboard.Port
			}
			return dashboard.Start(cmd.Context(), dashboard.StartOpts{
				DB:       a.db,
				Analyzer: o,
				Port:     port,
				Out:      cmd.OutOrStdout(),
				Log:      a.log,
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (default from dashboard.port)")
	return cmd
}
