package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/jrsteele09/go-punch-clock/internal/errors"
	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/punches"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	PunchTable          = "registros_ponto"
	LocationTable       = "registros_localizacao"
	RegisterLocationRPC = "registrar_localizacao"

	// isoMillis is the timestamp format used in REST filters.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

var (
	_ punches.Repo   = (*RestClient)(nil)
	_ location.Store = (*RestClient)(nil)
)

// RestClient reads and writes the backend tables on behalf of the signed in
// user. Requests carry the user's access token from tokens, or the anon key
// when nobody is signed in.
type RestClient struct {
	req *requester
}

func NewRestClient(baseURL, anonKey string, tokens oauth2.TokenSource, opts ...Option) *RestClient {
	o := buildOptions(opts)
	return &RestClient{
		req: &requester{
			baseURL: baseURL,
			httpClient: &http.Client{
				Timeout: o.timeout,
				Transport: &oauth2.Transport{
					Source: anonFallback{source: tokens, anonKey: anonKey},
					Base:   &apiKeyTransport{key: anonKey, base: o.transport},
				},
			},
		},
	}
}

// anonFallback substitutes the anon key when there is no session.
type anonFallback struct {
	source  oauth2.TokenSource
	anonKey string
}

func (a anonFallback) Token() (*oauth2.Token, error) {
	if a.source != nil {
		token, err := a.source.Token()
		if err == nil {
			return token, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotAuthenticated) {
			return nil, err
		}
	}
	return &oauth2.Token{AccessToken: a.anonKey, TokenType: "Bearer"}, nil
}

type punchRow struct {
	UserID    string       `json:"user_id"`
	Kind      punches.Kind `json:"tipo"`
	Timestamp string       `json:"data_hora"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Note      *string      `json:"observacao,omitempty"`
}

// Insert writes record and returns the stored row.
func (c *RestClient) Insert(ctx context.Context, record *punches.Record) (*punches.Record, error) {
	row := punchRow{
		UserID:    record.UserID,
		Kind:      record.Kind,
		Timestamp: record.Timestamp.UTC().Format(isoMillis),
		Latitude:  record.Latitude,
		Longitude: record.Longitude,
		Note:      record.Note,
	}

	var stored []punches.Record
	err := c.req.do(ctx, request{
		method:  http.MethodPost,
		path:    restPrefix + "/" + PunchTable,
		headers: map[string]string{"Prefer": "return=representation"},
		body:    row,
	}, &stored)
	if err != nil {
		return nil, errors.Wrap(err, "[RestClient.Insert]")
	}
	if len(stored) == 0 {
		// Without a representation the row as sent is what was stored.
		out := *record
		return &out, nil
	}
	return &stored[0], nil
}

// List selects the punches matching query, newest first.
func (c *RestClient) List(ctx context.Context, query punches.Query) ([]punches.Record, error) {
	values := url.Values{}
	values.Set("select", "*")
	values.Set("user_id", "eq."+query.UserID)
	if !query.From.IsZero() {
		values.Add("data_hora", "gte."+query.From.UTC().Format(isoMillis))
	}
	if !query.To.IsZero() {
		values.Add("data_hora", "lte."+query.To.UTC().Format(isoMillis))
	}
	values.Set("order", "data_hora.desc")

	var records []punches.Record
	err := c.req.do(ctx, request{
		method: http.MethodGet,
		path:   restPrefix + "/" + PunchTable,
		query:  values,
	}, &records)
	if err != nil {
		return nil, errors.Wrap(err, "[RestClient.List]")
	}
	return records, nil
}

type registerLocationArgs struct {
	UserID    string   `json:"p_user_id"`
	Latitude  float64  `json:"p_latitude"`
	Longitude float64  `json:"p_longitude"`
	Accuracy  *float64 `json:"p_precisao"`
}

// RegisterLocation calls the registrar_localizacao procedure.
func (c *RestClient) RegisterLocation(ctx context.Context, sample location.Sample) error {
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   restPrefix + "/rpc/" + RegisterLocationRPC,
		body: registerLocationArgs{
			UserID:    sample.UserID,
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			Accuracy:  sample.Accuracy,
		},
	}, nil)
	return errors.Wrap(err, "[RestClient.RegisterLocation]")
}

type locationRow struct {
	UserID    string   `json:"user_id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"precisao"`
	Timestamp string   `json:"timestamp"`
}

// InsertLocation writes sample straight into the location table.
func (c *RestClient) InsertLocation(ctx context.Context, sample location.Sample) error {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   restPrefix + "/" + LocationTable,
		body: locationRow{
			UserID:    sample.UserID,
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			Accuracy:  sample.Accuracy,
			Timestamp: ts.UTC().Format(isoMillis),
		},
	}, nil)
	return errors.Wrap(err, "[RestClient.InsertLocation]")
}
