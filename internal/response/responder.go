package response

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"bookproxy/internal/errs"
)

type Responder struct {
	DebugMode bool
}

// RespondError picks the status from the error kind. Typed errors show their own
// message to the caller, anything else is reported as a generic failure with an error id.
func (rr *Responder) RespondError(w http.ResponseWriter, ctx context.Context, err error) {
	rr.RespondErrorStatus(w, ctx, errs.Status(err), err)
}

// RespondErrorStatus is RespondError with an explicit status, for passing through upstream statuses.
func (rr *Responder) RespondErrorStatus(w http.ResponseWriter, ctx context.Context, status int, err error) {
	msg := errs.Message(err)
	if msg == "" {
		rr.RespondAndLogCustom(w, ctx, err, slog.LevelError, status)
		return
	}

	lvl := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}

	log(ctx, lvl, err.Error(), slog.Int("status", status), slog.String("kind", errs.KindOf(err).String()))
	rr.renderMessage(w, ctx, status, msg)
}

// RespondAndLogError will respond with generic error code (500) and log with slog.LevelError level
func (rr *Responder) RespondAndLogError(w http.ResponseWriter, ctx context.Context, err error) {
	errId := uuid.NewString()
	log(ctx, slog.LevelError, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, http.StatusInternalServerError, err.Error(), errId)
}

func (rr *Responder) RespondAndLogCustom(w http.ResponseWriter, ctx context.Context, err error, lvl slog.Level, status int) {
	errId := uuid.NewString()
	log(ctx, lvl, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, status, err.Error(), errId)
}

func (rr *Responder) SendJson(w http.ResponseWriter, ctx context.Context, data any) {
	bs, err := json.Marshal(data)
	if err != nil {
		rr.RespondAndLogError(w, ctx, err)
		return
	}

	rr.SendRawJson(w, bs)
}

// SendRawJson writes an already encoded JSON document.
func (rr *Responder) SendRawJson(w http.ResponseWriter, bs []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

func (rr *Responder) SendXml(w http.ResponseWriter, contentType string, bs []byte) {
	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

func (rr *Responder) renderError(w http.ResponseWriter, ctx context.Context, status int, message, errId string) {
	if rr.DebugMode {
		r, s := utf8.DecodeRuneInString(message)
		message = string(unicode.ToUpper(r)) + message[s:]
	} else {
		message = "Unknown error occurred while processing your request. Error ID: " + errId
	}

	rr.renderMessage(w, ctx, status, message)
}

func (rr *Responder) renderMessage(w http.ResponseWriter, ctx context.Context, status int, message string) {
	bs, err := json.Marshal(map[string]any{"error": message})
	if err == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	} else {
		log(ctx, slog.LevelError, "cannot marshall error response body: "+err.Error())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		bs = []byte("unknown error")
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

// Needed because it skips one more frame item than the slog.Log
func log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	l := slog.Default()

	if !l.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	pc = pcs[0]

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}
