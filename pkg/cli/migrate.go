package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sumav/sumav/internal/config"
	"github.com/sumav/sumav/internal/dumpmanager"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Dump, pull, list, or remove graph database snapshots",
	}
	cmd.AddCommand(newMigrateDumpGraphCmd())
	cmd.AddCommand(newMigratePullDumpedGraphCmd())
	cmd.AddCommand(newMigrateGetNewDumpedGraphNameCmd())
	cmd.AddCommand(newMigrateGetDumpedGraphNamesCmd())
	cmd.AddCommand(newMigrateRemoveGraphCmd())
	return cmd
}

func newDumpManager() (*dumpmanager.Manager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return dumpmanager.New(cfg.Postgres, slog.Default()), nil
}

func newMigrateDumpGraphCmd() *cobra.Command {
	var withDetection bool

	cmd := &cobra.Command{
		Use:   "dump_graph <source-database>",
		Short: "Dump a graph database's token tables into a new dated database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newDumpManager()
			if err != nil {
				return err
			}
			dst, err := m.DumpGraph(cmd.Context(), args[0], withDetection)
			if err != nil {
				return err
			}
			if dst == "" {
				fmt.Println(dimStyle.Render("nothing to dump"))
				return nil
			}
			fmt.Println(successStyle.Render(dst))
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDetection, "with-detection", false, "also dump the detection table, not just the token tables")
	return cmd
}

func newMigratePullDumpedGraphCmd() *cobra.Command {
	var remoteHost, remoteUser, remotePassword, remoteDatabase string
	var remotePort int

	cmd := &cobra.Command{
		Use:   "pull_dumped_graph <graph-name>",
		Short: "Pull a dumped graph database from a remote server into the local one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newDumpManager()
			if err != nil {
				return err
			}
			remote := config.Postgres{
				Host:     remoteHost,
				Port:     remotePort,
				User:     remoteUser,
				Password: remotePassword,
				Database: remoteDatabase,
			}
			dst, err := m.PullDumpedGraph(cmd.Context(), remote, args[0])
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render(dst))
			return nil
		},
	}
	cmd.Flags().StringVar(&remoteHost, "remote-host", "localhost", "remote postgres host")
	cmd.Flags().IntVar(&remotePort, "remote-port", 5432, "remote postgres port")
	cmd.Flags().StringVar(&remoteUser, "remote-user", "sumav", "remote postgres user")
	cmd.Flags().StringVar(&remotePassword, "remote-password", "", "remote postgres password")
	cmd.Flags().StringVar(&remoteDatabase, "remote-database", "sumav", "remote maintenance database")
	return cmd
}

func newMigrateGetNewDumpedGraphNameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get_new_dumped_graph_name <source-database>",
		Short: "Print the dated dump name a dump_graph call would create",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newDumpManager()
			if err != nil {
				return err
			}
			name, err := m.GetNewDumpedGraphName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if name == "" {
				fmt.Println(dimStyle.Render("no detection rows, no dump name"))
				return nil
			}
			fmt.Println(name)
			return nil
		},
	}
	return cmd
}

func newMigrateGetDumpedGraphNamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get_dumped_graph_names",
		Short: "List dumped graph databases, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newDumpManager()
			if err != nil {
				return err
			}
			names, err := m.GetDumpedGraphNames(cmd.Context())
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println(dimStyle.Render("(none)"))
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	return cmd
}

func newMigrateRemoveGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove_graph <graph-name>",
		Short: "Drop a dumped graph database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newDumpManager()
			if err != nil {
				return err
			}
			if err := m.RemoveGraph(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("removed " + args[0]))
			return nil
		},
	}
	return cmd
}
