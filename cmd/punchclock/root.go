package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "punchclock",
		Short: "Clock in and out with your location",
		Long: `punchclock records work punches (clock-in, lunch start, lunch end, clock-out)
against a Supabase compatible backend and samples your location while you are signed in.

Environment Variables:
  BACKEND_URL       Backend project URL (default: http://localhost:54321)
  BACKEND_ANON_KEY  Anonymous API key of the project
  FOLDER            Data folder for the stored session (default: ./data)
  REDIS_URL         Store the session in Redis instead of the data folder`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVar(&a.backendURL, "backend-url", a.backendURL, "Backend project URL (overrides BACKEND_URL)")
	root.PersistentFlags().StringVar(&a.anonKey, "anon-key", a.anonKey, "Anonymous API key (overrides BACKEND_ANON_KEY)")
	root.PersistentFlags().StringVar(&a.dataFolder, "data-folder", a.dataFolder, "Data folder (overrides FOLDER)")

	root.AddCommand(
		newSignUpCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newResetPasswordCmd(a),
		newNewPasswordCmd(a),
		newWhoAmICmd(a),
		newPunchCmd(a),
		newTodayCmd(a),
		newHistoryCmd(a),
		newMonitorCmd(a),
		newEmulatorCmd(a),
	)
	return root
}
