package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tartampluch/smart-village/internal/backup"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
)

// apiError is written as {"error": "...", "code": N, "data": ...}. HTTPStatus is not
// part of the body.
type apiError struct {
	Err        error
	Code       int
	HTTPStatus int
	Data       any
}

func (e apiError) Error() string { return e.Err.Error() }

func (e apiError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
		Data  any    `json:"data,omitempty"`
	}{
		Error: e.Err.Error(),
		Code:  e.Code,
		Data:  e.Data,
	})
}

// With appends detail to the message.
func (e apiError) With(detail string) apiError {
	e.Err = fmt.Errorf("%w: %s", e.Err, detail)
	return e
}

// WithErr appends err to the message.
func (e apiError) WithErr(err error) apiError {
	e.Err = fmt.Errorf("%w: %w", e.Err, err)
	return e
}

// WithData attaches a payload to the response.
func (e apiError) WithData(data any) apiError {
	e.Data = data
	return e
}

// Write sends the error. Server errors are logged at ERROR, client errors at DEBUG.
func (e apiError) Write(w http.ResponseWriter, r *http.Request) {
	level := slog.LevelDebug
	if e.HTTPStatus >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, config.MsgAPIError,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyMethod, r.Method,
		config.LogKeyPath, r.URL.Path,
		config.LogKeyStatus, e.HTTPStatus,
		config.LogKeyCode, e.Code,
		config.LogKeyError, e.Err,
	)
	writeJSON(w, e.HTTPStatus, e)
}

var (
	errMalformedBody  = apiError{Code: 4000, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgInvalidBody)}
	errInvalidID      = apiError{Code: 4001, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgInvalidID)}
	errInvalidDays    = apiError{Code: 4002, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgInvalidDays)}
	errInvalidAge     = apiError{Code: 4003, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgInvalidAge)}
	errInvalidPage    = apiError{Code: 4004, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgInvalidPage)}
	errNoFile         = apiError{Code: 4005, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgNoFile)}
	errBadFileType    = apiError{Code: 4006, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.HTTPMsgBadFileType)}
	errValidation     = apiError{Code: 4007, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrRecordInvalid)}
	errConfirm        = apiError{Code: 4008, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrConfirmRequired)}
	errStrategy       = apiError{Code: 4009, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrStrategyUnknown)}
	errBackupFormat   = apiError{Code: 4010, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrBackupFormat)}
	errSMSRecipients  = apiError{Code: 4011, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrSMSNoRecipients)}
	errSMSMessage     = apiError{Code: 4012, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrSMSEmptyMessage)}
	errTooLarge       = apiError{Code: 4130, HTTPStatus: http.StatusRequestEntityTooLarge, Err: errors.New(config.HTTPMsgTooLarge)}
	errFetch          = apiError{Code: 5020, HTTPStatus: http.StatusBadGateway, Err: errors.New(config.ErrFetch)}
	errWorkbook       = apiError{Code: 4014, HTTPStatus: http.StatusBadRequest, Err: errors.New(config.ErrWorkbookOpen)}
	errNotFound       = apiError{Code: 4040, HTTPStatus: http.StatusNotFound, Err: errors.New(config.ErrRecordNotFound)}
	errDuplicateAbort = apiError{Code: 4090, HTTPStatus: http.StatusConflict, Err: errors.New(config.ErrDuplicateAborted)}
	errDuplicate      = apiError{Code: 4091, HTTPStatus: http.StatusConflict, Err: errors.New(config.ErrRecordDuplicate)}
	errTimeout        = apiError{Code: 4990, HTTPStatus: http.StatusRequestTimeout, Err: context.DeadlineExceeded}
	errInternal       = apiError{Code: 5000, HTTPStatus: http.StatusInternalServerError, Err: errors.New(config.HTTPMsgInternalErr)}
	errNotConfigured  = apiError{Code: 5030, HTTPStatus: http.StatusServiceUnavailable, Err: errors.New(config.HTTPMsgNotImplemented)}
)

// toAPIError maps domain errors to responses. Unknown errors become 500s and keep
// the cause for the log only.
func toAPIError(err error) apiError {
	var apiErr apiError
	var verr *records.ValidationError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &verr):
		return errValidation.WithData(verr.Fields)
	case errors.Is(err, records.ErrNotFound):
		return errNotFound
	case errors.Is(err, records.ErrDuplicateAborted):
		return errDuplicateAbort.WithErr(err)
	case errors.Is(err, records.ErrDuplicate):
		return errDuplicate
	case errors.Is(err, records.ErrConfirmRequired):
		return errConfirm
	case errors.Is(err, records.ErrUnknownStrategy):
		return errStrategy.WithErr(err)
	case errors.Is(err, records.ErrInvalidInput):
		return errValidation.WithErr(err)
	case errors.Is(err, backup.ErrInvalidFormat):
		return errBackupFormat
	case errors.Is(err, backup.ErrNoArchive):
		return errNotConfigured.With(config.ErrBackupArchive)
	case errors.Is(err, sms.ErrNoRecipients):
		return errSMSRecipients
	case errors.Is(err, sms.ErrEmptyMessage):
		return errSMSMessage
	case errors.Is(err, context.DeadlineExceeded):
		return errTimeout
	default:
		e := errInternal
		e.Err = fmt.Errorf("%w: %w", errInternal.Err, err)
		return e
	}
}

// writeError maps and writes err.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := toAPIError(err)
	if e.HTTPStatus >= http.StatusInternalServerError && e.Code == errInternal.Code {
		// The cause is logged but not exposed.
		slog.Error(config.MsgAPIError,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyPath, r.URL.Path,
			config.LogKeyError, e.Err,
		)
		writeJSON(w, e.HTTPStatus, errInternal)
		return
	}
	e.Write(w, r)
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}
