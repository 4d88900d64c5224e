package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartscan/internal/attendance"
	"smartscan/internal/bootstrap"
	"smartscan/internal/config"
	"smartscan/internal/export"
	"smartscan/internal/logger"
	"smartscan/internal/schedule"
	"smartscan/internal/store"
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smartscanctl",
		Short:         "Admin tasks for the attendance tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newPeriodCmd(),
		newTimetableCmd(),
		newExportCmd(),
		newSetStatusCmd(),
		newPercentagesCmd(),
	)
	return root
}

func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.Components) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zl, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.Build(ctx, cfg, zl.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the attendance table if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := store.NewDB(cmd.Context(), cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", db.Driver)
			return nil
		},
	}
}

func newPeriodCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Show the period running now, or at --at (RFC 3339)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			table, err := schedule.Load(cfg.TimetableFile)
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}
			p := schedule.NewResolver(table, loc).Current(now)
			label := p.Label
			if label == "" {
				label = "(nothing scheduled)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s [%s]\n", p.Weekday, now.In(loc).Format("15:04"), label, p.Kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Instant to resolve, e.g. 2024-01-01T09:30:00+05:30")
	return cmd
}

func newTimetableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timetable",
		Short: "Print the weekly timetable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			table, err := schedule.Load(cfg.TimetableFile)
			if err != nil {
				return err
			}
			return writeTimetable(cmd.OutOrStdout(), table)
		},
	}
}

func writeTimetable(w io.Writer, table *schedule.Timetable) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Day\t%s\n", strings.Join(schedule.Slots[:], "\t"))
	for _, d := range table.Days() {
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, strings.Join(d.Periods, "\t"))
	}
	return tw.Flush()
}

func newExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole attendance table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.Components) error {
				recs, err := app.Service.Records(ctx)
				if err != nil {
					return err
				}
				body, err := export.Render(f, recs, app.Location, "Attendance")
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(body)
					return err
				}
				if err := os.WriteFile(out, body, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", len(recs), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv, xlsx or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Change the status of one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			status, err := attendance.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *bootstrap.Components) error {
				if err := app.Service.UpdateStatus(ctx, id, status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "record %d is now %s\n", id, status)
				return nil
			})
		},
	}
}

func newPercentagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "percentages <roll-number>",
		Short: "Per-subject attendance for one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *bootstrap.Components) error {
				st, err := app.Service.Student(args[0])
				if err != nil {
					return err
				}
				rows, err := app.Service.Percentages(ctx, st.Email)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", st.RollNumber, st.Email)
				return writePercentages(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func writePercentages(w io.Writer, rows []attendance.SubjectPercentage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Subject\tAttended\tTotal\tPercentage")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Subject, r.Attended, r.Total, r.Display)
	}
	return tw.Flush()
}
