package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-punch-clock/internal/config"
	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/punches"
	"github.com/jrsteele09/go-punch-clock/server"
	refreshrepofake "github.com/jrsteele09/go-punch-clock/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-punch-clock/users/repofake"
	"github.com/stretchr/testify/require"
)

const testAnonKey = "cli-anon-key"

type testConfig struct {
	config.EnvVars
	config.Backend
	config.Location
}

type cliFixture struct {
	t        *testing.T
	emulator *server.Server
	url      string
	folder   string
}

func setupCLI(t *testing.T) *cliFixture {
	t.Helper()
	emulator, err := server.New(config.EnvVars{}, fakeuserrepo.NewFakeUserRepo(), refreshrepofake.NewFakeRefreshTokenRepo(), server.WithAnonKey(testAnonKey))
	require.NoError(t, err)
	ts := httptest.NewServer(emulator)
	t.Cleanup(ts.Close)
	return &cliFixture{t: t, emulator: emulator, url: ts.URL, folder: t.TempDir()}
}

// execute runs one command the way a fresh process would.
func (f *cliFixture) execute(args ...string) (string, error) {
	f.t.Helper()
	var out bytes.Buffer
	a := newApp(testConfig{}, &out, strings.NewReader(""))
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(append([]string{"--backend-url", f.url, "--anon-key", testAnonKey, "--data-folder", f.folder}, args...))
	err := root.Execute()
	return out.String(), err
}

func (f *cliFixture) mustExecute(args ...string) string {
	f.t.Helper()
	out, err := f.execute(args...)
	require.NoError(f.t, err, out)
	return out
}

func TestCLI_AccountAndPunches(t *testing.T) {
	f := setupCLI(t)

	out := f.mustExecute("signup", "--email", "ana@empresa.com", "--password", "segredo1", "--name", "Ana Silva")
	require.Contains(t, out, "Signed in as Ana Silva")

	out = f.mustExecute("whoami")
	require.Contains(t, out, "Ana Silva <ana@empresa.com>")

	out = f.mustExecute("punch")
	require.Contains(t, out, punches.KindClockIn.Label()+" recorded")

	_, err := f.execute("punch", "entrada")
	require.ErrorIs(t, err, apperrors.ErrAlreadyRecorded)

	_, err = f.execute("punch", "pausa")
	require.ErrorIs(t, err, apperrors.ErrInvalidKind)

	out = f.mustExecute("today")
	require.Contains(t, out, punches.KindClockIn.Label())
	require.Contains(t, out, "Next: "+punches.KindLunchStart.Label())

	out = f.mustExecute("history")
	require.Contains(t, out, time.Now().Format(punches.DateLabelLayout))

	out = f.mustExecute("history", "--date", "01/01/2001")
	require.Contains(t, out, "No punches found.")

	_, err = f.execute("history", "--date", "2001-01-01")
	require.Error(t, err)

	require.Len(t, f.emulator.Tables().Punches(), 1)

	out = f.mustExecute("logout")
	require.Contains(t, out, "Signed out.")
	out = f.mustExecute("whoami")
	require.Contains(t, out, "Not signed in.")

	_, err = f.execute("today")
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestCLI_LoginFailures(t *testing.T) {
	f := setupCLI(t)
	f.mustExecute("signup", "--email", "ana@empresa.com", "--password", "segredo1", "--name", "Ana Silva")
	f.mustExecute("logout")

	_, err := f.execute("login", "--email", "ana@empresa.com", "--password", "errada")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = f.execute("login", "--email", "ninguem@empresa.com", "--password", "segredo1")
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)

	out := f.mustExecute("login", "--email", "ana@empresa.com", "--password", "segredo1")
	require.Contains(t, out, "Signed in as Ana Silva")
}

func TestCLI_PasswordRecovery(t *testing.T) {
	f := setupCLI(t)
	f.mustExecute("signup", "--email", "ana@empresa.com", "--password", "segredo1", "--name", "Ana Silva")
	f.mustExecute("logout")

	out := f.mustExecute("reset-password", "--email", "ana@empresa.com")
	require.Contains(t, out, "recovery link")
	mail, ok := f.emulator.Outbox().Last("ana@empresa.com")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(mail.Link, "seuapp://novaSenha?"))

	_, err := f.execute("new-password", "--link", mail.Link, "--password", "novasenha", "--confirm", "outra")
	require.ErrorIs(t, err, apperrors.ErrPasswordMismatch)

	_, err = f.execute("new-password", "--link", "seuapp://novaSenha", "--password", "novasenha", "--confirm", "novasenha")
	require.ErrorIs(t, err, apperrors.ErrInvalidRecoveryToken)

	out = f.mustExecute("new-password", "--link", mail.Link, "--password", "novasenha", "--confirm", "novasenha")
	require.Contains(t, out, "Password updated for ana@empresa.com")

	f.mustExecute("logout")
	_, err = f.execute("login", "--email", "ana@empresa.com", "--password", "segredo1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	f.mustExecute("login", "--email", "ana@empresa.com", "--password", "novasenha")
}
