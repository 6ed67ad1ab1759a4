package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-punch-clock/location"
	"github.com/jrsteele09/go-punch-clock/punches"
	"github.com/jrsteele09/go-punch-clock/token/jwt"
	"github.com/rs/zerolog/log"
)

const (
	pgInsufficientPrivilege = "42501"
	pgUndefinedTable        = "42P01"
	pgUndefinedColumn       = "42703"
	pgNotNullViolation      = "23502"
	pgCheckViolation        = "23514"
	pgInvalidText           = "22P02"
	pgrstParseError         = "PGRST100"
	pgrstInvalidBody        = "PGRST102"
	pgrstFunctionNotFound   = "PGRST202"
)

func tableColumns(table string) (row, bool) {
	switch table {
	case TablePunches:
		return punchColumns, true
	case TableLocations:
		return locationColumns, true
	}
	return nil, false
}

func writeUndefinedTable(w http.ResponseWriter, table string) {
	writeRestError(w, http.StatusNotFound, restError{
		Code:    pgUndefinedTable,
		Message: fmt.Sprintf("relation \"public.%s\" does not exist", table),
	})
}

// rlsViolation reports a write the row level security policies reject: the
// anonymous role may not write, users may only write their own rows.
func rlsViolation(w http.ResponseWriter, claims *jwt.AccessClaims, table, userID string) bool {
	if claims == nil {
		writeRestError(w, http.StatusUnauthorized, restError{
			Code:    pgInsufficientPrivilege,
			Message: "permission denied for table " + table,
		})
		return true
	}
	if userID != claims.Subject {
		writeRestError(w, http.StatusForbidden, restError{
			Code:    pgInsufficientPrivilege,
			Message: fmt.Sprintf("new row violates row-level security policy for table \"%s\"", table),
		})
		return true
	}
	return false
}

// SelectHandler reads a table. Users see their own rows, the anonymous role none.
func (s *Server) SelectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := r.PathValue("table")
		columns, ok := tableColumns(table)
		if !ok {
			writeUndefinedTable(w, table)
			return
		}

		filters, sortBy, limit, err := parseFilters(r.URL.Query(), columns)
		if err != nil {
			code := pgrstParseError
			if strings.Contains(err.Error(), "does not exist") {
				code = pgUndefinedColumn
			}
			writeRestError(w, http.StatusBadRequest, restError{Code: code, Message: err.Error()})
			return
		}
		if err := checkFilters(filters, columns); err != nil {
			writeRestError(w, http.StatusBadRequest, restError{Code: pgInvalidText, Message: err.Error()})
			return
		}

		claims := claimsFrom(r.Context())
		if claims == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		filters = append(filters, filter{column: "user_id", op: "eq", value: claims.Subject})

		switch table {
		case TablePunches:
			writeJSON(w, http.StatusOK, s.tables.SelectPunches(filters, sortBy, limit))
		case TableLocations:
			writeJSON(w, http.StatusOK, s.tables.SelectLocations(filters, sortBy, limit))
		}
	}
}

type punchInsert struct {
	UserID    string       `json:"user_id"`
	Kind      punches.Kind `json:"tipo"`
	Timestamp *time.Time   `json:"data_hora"`
	Latitude  *float64     `json:"latitude"`
	Longitude *float64     `json:"longitude"`
	Accuracy  *float64     `json:"precisao"`
	Note      *string      `json:"observacao"`
}

type locationInsert struct {
	UserID    string     `json:"user_id"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Accuracy  *float64   `json:"precisao"`
	Timestamp *time.Time `json:"timestamp"`
}

// InsertHandler writes one row or an array of rows. With
// "Prefer: return=representation" the stored rows are returned.
func (s *Server) InsertHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table := r.PathValue("table")
		claims := claimsFrom(r.Context())

		var stored any
		switch table {
		case TablePunches:
			var rows []punchInsert
			if !decodeRows(w, r, &rows) {
				return
			}
			records := make([]punches.Record, 0, len(rows))
			for _, in := range rows {
				if rlsViolation(w, claims, table, in.UserID) {
					return
				}
				record, errBody := s.newPunch(in)
				if errBody != nil {
					writeRestError(w, http.StatusBadRequest, *errBody)
					return
				}
				records = append(records, record)
			}
			s.tables.InsertPunches(records...)
			for _, rec := range records {
				log.Info().Str("user_id", rec.UserID).Str("tipo", string(rec.Kind)).Msg("Emulator: punch stored")
			}
			stored = records
		case TableLocations:
			var rows []locationInsert
			if !decodeRows(w, r, &rows) {
				return
			}
			samples := make([]location.Sample, 0, len(rows))
			for _, in := range rows {
				if rlsViolation(w, claims, table, in.UserID) {
					return
				}
				sample, errBody := s.newLocation(in)
				if errBody != nil {
					writeRestError(w, http.StatusBadRequest, *errBody)
					return
				}
				samples = append(samples, sample)
			}
			s.tables.InsertLocations(samples...)
			stored = samples
		default:
			writeUndefinedTable(w, table)
			return
		}

		if strings.Contains(r.Header.Get("Prefer"), "return=representation") {
			writeJSON(w, http.StatusCreated, stored)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) newPunch(in punchInsert) (punches.Record, *restError) {
	if !in.Kind.Valid() {
		return punches.Record{}, &restError{
			Code:    pgCheckViolation,
			Message: fmt.Sprintf("new row for relation \"%s\" violates check constraint \"%s_tipo_check\"", TablePunches, TablePunches),
		}
	}
	if in.Latitude == nil || in.Longitude == nil {
		return punches.Record{}, notNull(TablePunches, in.Latitude == nil)
	}
	ts := s.opts.nowTime()
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}
	return punches.Record{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		Kind:      in.Kind,
		Timestamp: ts,
		Latitude:  *in.Latitude,
		Longitude: *in.Longitude,
		Accuracy:  in.Accuracy,
		Note:      in.Note,
	}, nil
}

func (s *Server) newLocation(in locationInsert) (location.Sample, *restError) {
	if in.Latitude == nil || in.Longitude == nil {
		return location.Sample{}, notNull(TableLocations, in.Latitude == nil)
	}
	ts := s.opts.nowTime()
	if in.Timestamp != nil {
		ts = *in.Timestamp
	}
	return location.Sample{
		UserID:    in.UserID,
		Latitude:  *in.Latitude,
		Longitude: *in.Longitude,
		Accuracy:  in.Accuracy,
		Timestamp: ts,
	}, nil
}

func notNull(table string, latitudeMissing bool) *restError {
	column := "longitude"
	if latitudeMissing {
		column = "latitude"
	}
	return &restError{
		Code:    pgNotNullViolation,
		Message: fmt.Sprintf("null value in column \"%s\" of relation \"%s\" violates not-null constraint", column, table),
	}
}

// decodeRows accepts a single JSON object or an array of them.
func decodeRows[T any](w http.ResponseWriter, r *http.Request, out *[]T) bool {
	raw, err := io.ReadAll(r.Body)
	if err == nil {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			err = json.Unmarshal(raw, out)
		} else {
			var one T
			if err = json.Unmarshal(raw, &one); err == nil {
				*out = []T{one}
			}
		}
	}
	if err != nil {
		writeRestError(w, http.StatusBadRequest, restError{Code: pgrstInvalidBody, Message: "Empty or invalid json"})
		return false
	}
	return true
}

type registerLocationArgs struct {
	UserID    string   `json:"p_user_id"`
	Latitude  *float64 `json:"p_latitude"`
	Longitude *float64 `json:"p_longitude"`
	Accuracy  *float64 `json:"p_precisao"`
}

// RPCHandler serves registrar_localizacao, which stores one location row
// stamped with the server time.
func (s *Server) RPCHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		function := r.PathValue("function")
		if function != FunctionRegisterLocation || s.rpcDisabled.Load() {
			writeRestError(w, http.StatusNotFound, restError{
				Code:    pgrstFunctionNotFound,
				Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", function),
			})
			return
		}

		var args registerLocationArgs
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			writeRestError(w, http.StatusBadRequest, restError{Code: pgrstInvalidBody, Message: "Empty or invalid json"})
			return
		}
		claims := claimsFrom(r.Context())
		if claims == nil {
			writeRestError(w, http.StatusUnauthorized, restError{
				Code:    pgInsufficientPrivilege,
				Message: "permission denied for function " + function,
			})
			return
		}
		if rlsViolation(w, claims, TableLocations, args.UserID) {
			return
		}

		sample, errBody := s.newLocation(locationInsert{
			UserID:    args.UserID,
			Latitude:  args.Latitude,
			Longitude: args.Longitude,
			Accuracy:  args.Accuracy,
		})
		if errBody != nil {
			writeRestError(w, http.StatusBadRequest, *errBody)
			return
		}
		s.tables.InsertLocations(sample)
		w.WriteHeader(http.StatusNoContent)
	}
}
