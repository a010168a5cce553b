package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/db"
)

func newDBCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd(v))
	cmd.AddCommand(newDBResetCmd(v))
	return cmd
}

func newDBInitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the Quill database",
		Long:  "Creates the database when the driver supports it and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, v)
		},
	}
}

func runDBInit(cmd *cobra.Command, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded config from %s (driver %s)\n", v.GetString("config"), cfg.Database.Driver)

	if cfg.Database.Driver == "mysql" {
		if err := createMySQLDatabase(cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)
	}

	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := db.AutoMigrate(a.db); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nQuill database initialized successfully.")
	return nil
}

func createMySQLDatabase(cfg *config.Config) error {
	adminDB, err := db.ConnectAdmin(cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := adminDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	return db.CreateDatabase(adminDB, cfg.Database.Name)
}

func newDBResetCmd(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Quill database",
		Long: `Drops every Quill table (or the whole MySQL database) and migrates
again. All works, units, continuity records and run history are lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, v, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, v *viper.Viper, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	if !skipConfirm {
		if !confirmReset(cmd, resetTarget(cfg)) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.DropDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dropped database %s\n", cfg.Database.Name)
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s re-created\n", cfg.Database.Name)
	}

	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Database.Driver != "mysql" {
		if err := db.DropAll(a.db); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dropped %d tables\n", len(db.AllModels()))
	}
	if err := db.AutoMigrate(a.db); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nQuill database reset and re-initialized successfully.")
	return nil
}

func resetTarget(cfg *config.Config) string {
	if cfg.Database.Driver == "sqlite" {
		return cfg.Database.Path
	}
	return cfg.Database.Name
}

// confirmReset asks the user to type the database name. A terminal gets a
// prompt; any other stdin is read as-is.
func confirmReset(cmd *cobra.Command, name string) bool {
	if stdinIsTerminal() {
		fmt.Fprintf(cmd.OutOrStdout(), "This will permanently delete all data in %s.\nType the name to confirm: ", name)
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return false
	}
	return strings.TrimSpace(scanner.Text()) == name
}
