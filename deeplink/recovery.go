package deeplink

import (
	"context"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/rs/zerolog/log"
)

// SessionAdopter opens a session from the tokens of a recovery link.
type SessionAdopter interface {
	SetSession(ctx context.Context, accessToken, refreshToken string) (*sessions.Session, error)
}

// RecoveryHandler returns a Callback that adopts the session of recovery
// links and reports it through onReady. Error redirects and failed adoptions
// are reported through onError as ErrInvalidRecoveryToken. Links of any
// other type are ignored.
func RecoveryHandler(ctx context.Context, adopter SessionAdopter, onReady func(*sessions.Session), onError func(error)) Callback {
	return func(params Params) {
		if params.Failed() {
			msg := params.ErrorDescription
			if msg == "" {
				msg = params.ErrorCode
			}
			if msg == "" {
				msg = params.Error
			}
			log.Warn().Str("error_code", params.ErrorCode).Str("description", params.ErrorDescription).Msg("Recovery link rejected by the auth service")
			report(onError, apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, msg))
			return
		}
		if !params.Recovery() {
			return
		}

		session, err := adopter.SetSession(ctx, params.AccessToken, params.RefreshToken)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrInvalidRecoveryToken) {
				err = apperrors.AuthErr(apperrors.ErrInvalidRecoveryToken, err.Error())
			}
			report(onError, err)
			return
		}
		if onReady != nil {
			onReady(session)
		}
	}
}

func report(onError func(error), err error) {
	if onError != nil {
		onError(err)
	}
}
