package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-punch-clock/coordinator"
	"github.com/jrsteele09/go-punch-clock/deeplink"
	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMonitorCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample the location while signed in",
		Long: `monitor follows the stored session and samples the (simulated) location while
a user is signed in, until interrupted.

Lines read from standard input drive the app lifecycle:
  active | inactive | background   report an app state change
  retry                            retry starting location monitoring
  dismiss                          hide the permission prompt
  <url>                            open a deep link, e.g. a recovery link`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context(), a, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	return cmd
}

func runMonitor(ctx context.Context, a *app, metricsAddr string) error {
	displayAppname(a.cfg.GetAppName())
	out := &syncWriter{w: a.out}

	store, err := a.sessionStore(ctx)
	if err != nil {
		return err
	}
	rest, err := a.restClient(ctx)
	if err != nil {
		return err
	}
	monitor, err := location.NewMonitor(a.locationProvider(), location.NewSink(rest), location.OptionsFromConfig(a.cfg))
	if err != nil {
		return err
	}
	coord, err := coordinator.New(store, monitor, coordinator.WithNotifier(printNotifier{out: out}))
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		metricsServer := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go listenAndServe(metricsServer)
		defer func() {
			if err := shutdown(metricsServer); err != nil {
				log.Warn().Err(err).Msg("Stopping metrics server")
			}
		}()
	}

	urls := make(chan string)
	processor, err := deeplink.NewProcessor(deeplink.NewChanSource("", urls))
	if err != nil {
		return err
	}
	unsubscribe := processor.Listen(deeplink.RecoveryHandler(ctx, store,
		func(s *sessions.Session) {
			fmt.Fprintf(out, "Recovery session adopted for %s. Run new-password to choose a new password.\n", s.User.Email)
		},
		func(err error) { log.Warn().Err(err).Msg("Recovery link rejected") },
	))
	defer unsubscribe()
	go readCommands(ctx, a.in, out, coord, urls)

	fmt.Fprintln(out, "Monitoring. Press Ctrl+C to stop.")
	err = coord.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readCommands feeds stdin lines to the coordinator and the deep link source.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, coord *coordinator.Coordinator, urls chan<- string) {
	defer close(urls)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case string(coordinator.AppActive), string(coordinator.AppInactive), string(coordinator.AppBackground):
			coord.HandleAppStateChange(ctx, coordinator.AppState(line))
		case "retry":
			if err := coord.Retry(ctx); err != nil {
				log.Warn().Err(err).Msg("Retry")
			}
		case "dismiss":
			coord.DismissPermissionModal()
		default:
			select {
			case urls <- line:
			case <-ctx.Done():
				return
			}
		}
		state := coord.State()
		fmt.Fprintf(out, "location=%t services=%t prompt=%t\n",
			state.LocationEnabled, state.DeviceLocationServicesEnabled, state.ShowPermissionModal)
	}
}

type printNotifier struct {
	out io.Writer
}

func (n printNotifier) Alert(title, message string) {
	fmt.Fprintf(n.out, "%s: %s\n", title, message)
}

// syncWriter serialises the monitor's output, which is written from the
// coordinator, the stdin reader and the deep link listener.
type syncWriter struct {
	lock sync.Mutex
	w    io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.lock.Lock()
	defer sw.lock.Unlock()
	return sw.w.Write(p)
}
