package deeplink

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// RecoveryPath is the host part of the password recovery link.
	RecoveryPath = "novaSenha"
	// TypeRecovery marks links opened from a password recovery email.
	TypeRecovery = "recovery"
)

// Params are the authentication parameters carried by a deep link.
type Params struct {
	AccessToken      string
	RefreshToken     string
	Type             string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// Recovery reports whether the link carries a recovery session.
func (p Params) Recovery() bool {
	return p.AccessToken != "" && p.Type == TypeRecovery
}

// Failed reports whether the auth service redirected with an error.
func (p Params) Failed() bool {
	return p.Error != "" || p.ErrorCode != ""
}

func (p Params) empty() bool {
	return p == Params{}
}

// RedirectURL is where recovery emails send the user back to.
func RedirectURL(scheme string) string {
	return scheme + "://" + RecoveryPath
}

// Parse extracts the authentication parameters of rawURL from its query and
// its fragment. Query values win over fragment values. ok is false when the
// URL is malformed or carries no parameters.
func Parse(rawURL string) (Params, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		log.Warn().Err(err).Msg("Deep link: malformed url")
		return Params{}, false
	}

	query := parseValues(u.RawQuery, "query")
	fragment := parseValues(u.EscapedFragment(), "fragment")
	get := func(key string) string {
		if v := query.Get(key); v != "" {
			return v
		}
		return fragment.Get(key)
	}

	params := Params{
		AccessToken:      get("access_token"),
		RefreshToken:     get("refresh_token"),
		Type:             get("type"),
		Error:            get("error"),
		ErrorCode:        get("error_code"),
		ErrorDescription: get("error_description"),
	}
	if params.empty() {
		return Params{}, false
	}
	return params, true
}

// Redact renders rawURL for logs: scheme, host and path plus the names of
// its query and fragment parameters. Values are dropped since recovery links
// carry live tokens.
func Redact(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "<malformed>"
	}
	out := u.Scheme + "://" + u.Host + u.Path
	if names := paramNames(u.RawQuery); names != "" {
		out += "?" + names
	}
	if names := paramNames(u.EscapedFragment()); names != "" {
		out += "#" + names
	}
	return out
}

func paramNames(raw string) string {
	var names []string
	for _, pair := range strings.Split(raw, "&") {
		if name, _, _ := strings.Cut(pair, "="); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

// parseValues keeps whatever pairs parsed cleanly.
func parseValues(raw, part string) url.Values {
	if raw == "" {
		return url.Values{}
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		log.Warn().Err(err).Str("part", part).Msg("Deep link: skipping malformed parameters")
	}
	return values
}

// Source delivers the URL the app was launched with and the URLs opened
// while it runs.
type Source interface {
	InitialURL(ctx context.Context) (string, error)
	Subscribe(handler func(rawURL string)) (unsubscribe func())
}

// Callback receives the parameters of a parsed link.
type Callback func(Params)

// Processor turns the URLs of a Source into Params.
type Processor struct {
	source Source
}

func NewProcessor(source Source) (*Processor, error) {
	if source == nil {
		return nil, errors.New("[NewProcessor] source is required")
	}
	return &Processor{source: source}, nil
}

// CheckInitialLink handles the launch URL. It reports whether there was one;
// callback only runs when the URL carried parameters.
func (p *Processor) CheckInitialLink(ctx context.Context, callback Callback) bool {
	rawURL, err := p.source.InitialURL(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Deep link: reading initial url")
		return false
	}
	if rawURL == "" {
		return false
	}
	log.Info().Str("url", Redact(rawURL)).Msg("Deep link: initial url")
	p.process(rawURL, callback)
	return true
}

// Listen handles URLs opened while the app runs until unsubscribe is called.
func (p *Processor) Listen(callback Callback) (unsubscribe func()) {
	return p.source.Subscribe(func(rawURL string) {
		log.Info().Str("url", Redact(rawURL)).Msg("Deep link: received")
		p.process(rawURL, callback)
	})
}

func (p *Processor) process(rawURL string, callback Callback) {
	params, ok := Parse(rawURL)
	if !ok || callback == nil {
		return
	}
	log.Debug().Bool("access_token", params.AccessToken != "").Bool("refresh_token", params.RefreshToken != "").
		Str("type", params.Type).Msg("Deep link: authentication parameters found")
	callback(params)
}
