package main

import (
	"fmt"
	"io"
	"time"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/internal/utils"
	"github.com/jrsteele09/go-punch-clock/punches"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newPunchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "punch [kind]",
		Short: "Record a punch at the current location",
		Long: `Record a punch. kind is one of entrada, inicio_almoco, fim_almoco, saida
or its label; without it the next expected punch of the day is recorded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recorder, err := a.recorder(ctx)
			if err != nil {
				return err
			}

			var kind punches.Kind
			if len(args) == 1 {
				if kind, err = punches.ParseKind(args[0]); err != nil {
					return err
				}
			} else {
				store, err := a.sessionStore(ctx)
				if err != nil {
					return err
				}
				session, err := store.GetSession(ctx)
				if err != nil {
					return err
				}
				if session == nil {
					return apperrors.ErrNotAuthenticated
				}
				next, ok, err := recorder.NextExpectedPunch(ctx, session.UserID())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "All punches for today are recorded.")
					return nil
				}
				kind = next
			}

			record, err := recorder.RecordPunch(ctx, kind, "", nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s recorded at %s (%.5f, %.5f).\n", record.Kind.Label(),
				record.Timestamp.In(a.cfg.GetTimezone()).Format("15:04:05"), record.Latitude, record.Longitude)
			return nil
		},
	}
}

func newTodayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's punches and the next expected one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.sessionStore(ctx)
			if err != nil {
				return err
			}
			session, err := store.GetSession(ctx)
			if err != nil {
				return err
			}
			if session == nil {
				return apperrors.ErrNotAuthenticated
			}
			recorder, err := a.recorder(ctx)
			if err != nil {
				return err
			}
			records, err := recorder.TodaysRecords(ctx, session.UserID())
			if err != nil {
				return err
			}

			printRecords(a.out, records, a.cfg.GetTimezone())
			if next, ok := punches.NextExpected(records); ok {
				fmt.Fprintf(a.out, "Next: %s\n", next.Label())
			} else {
				fmt.Fprintln(a.out, "All punches for today are recorded.")
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List punches grouped by day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.sessionStore(ctx)
			if err != nil {
				return err
			}
			session, err := store.GetSession(ctx)
			if err != nil {
				return err
			}
			if session == nil {
				return apperrors.ErrNotAuthenticated
			}

			var day *time.Time
			if date != "" {
				parsed, err := time.ParseInLocation(punches.DateLabelLayout, date, a.cfg.GetTimezone())
				if err != nil {
					return errors.Wrapf(err, "invalid --date %q, expected dd/mm/yyyy", date)
				}
				day = &parsed
			}

			history, err := a.history(ctx)
			if err != nil {
				return err
			}
			records, err := history.ListPunches(ctx, session.UserID(), day)
			if err != nil {
				return err
			}
			groups := history.GroupByDay(records)
			if len(groups) == 0 {
				fmt.Fprintln(a.out, "No punches found.")
				return nil
			}
			for _, group := range groups {
				fmt.Fprintln(a.out, group.Label)
				printRecords(a.out, group.Records, a.cfg.GetTimezone())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Only this day, dd/mm/yyyy")
	return cmd
}

func printRecords(w io.Writer, records []punches.Record, loc *time.Location) {
	for _, r := range records {
		fmt.Fprintf(w, "  %s  %-17s (%.5f, %.5f)", r.Timestamp.In(loc).Format("15:04:05"), r.Kind.Label(), r.Latitude, r.Longitude)
		if note := utils.Value(r.Note); note != "" {
			fmt.Fprintf(w, "  %s", note)
		}
		fmt.Fprintln(w)
	}
}
