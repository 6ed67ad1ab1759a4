package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-punch-clock/server"
	refreshrepofake "github.com/jrsteele09/go-punch-clock/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-punch-clock/users/repofake"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const signingKeyFile = "emulator_signing_key.pem"

func newEmulatorCmd(a *app) *cobra.Command {
	var addr string
	var confirmEmail bool
	cmd := &cobra.Command{
		Use:   "emulator",
		Short: "Run an in-memory backend for local use",
		Long: `emulator serves the auth API, the punch and location tables and the
registrar_localizacao procedure from memory. Accounts and rows are lost on exit;
the token signing key is kept in the data folder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.GetEmulatorPort()
			}
			return runEmulator(cmd.Context(), a, addr, confirmEmail)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from EMULATOR_PORT)")
	cmd.Flags().BoolVar(&confirmEmail, "confirm-email", false, "Require email confirmation before login")
	return cmd
}

func runEmulator(ctx context.Context, a *app, addr string, confirmEmail bool) error {
	displayAppname(a.cfg.GetAppName() + " Emulator")

	emulator, err := server.New(a.cfg, fakeuserrepo.NewFakeUserRepo(), refreshrepofake.NewFakeRefreshTokenRepo(),
		server.WithAnonKey(a.anonKey),
		server.WithSigningKeyFile(filepath.Join(a.dataFolder, signingKeyFile)),
		server.WithEmailConfirmation(confirmEmail),
		server.WithIssuer(a.backendURL+"/auth/v1"),
	)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: addr, Handler: emulator, ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(httpServer) }()
	go cleanupRevokedSessions(ctx, emulator)
	fmt.Fprintf(a.out, "Emulator listening on %s\n", addr)

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			return err
		}
	}
	return shutdown(httpServer)
}

func cleanupRevokedSessions(ctx context.Context, emulator *server.Server) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emulator.CleanupRevokedSessions()
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("addr", server.Addr).Msg("Server stopped")
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
