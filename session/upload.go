package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/transcribe"
	"github.com/kbukum/audioscribe/validation"
)

type uploadRequest struct {
	Filename string `json:"filename" validate:"required,max=255,safe_filename"`
}

// serve wires the reader and the single writer for one connection and
// returns a context cancelled with ErrDisconnected once the client is gone.
func serve(ctx context.Context, conn Conn) (context.Context, *reader, func(any) error, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	r := startReader(ctx, cancel, conn)
	write := func(v any) error {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		if err := conn.WriteJSON(v); err != nil {
			cancel(ErrDisconnected)
			return ErrDisconnected
		}
		return nil
	}
	return ctx, r, write, cancel
}

// ServeUpload runs the upload loop until the client disconnects, ctx ends or
// the client breaks the protocol. Each job is a {"filename"} text message
// followed by one binary message with the file bytes. A failed job is
// reported and the loop waits for the next one.
func (o *Orchestrator) ServeUpload(ctx context.Context, conn Conn) error {
	ctx, r, write, cancel := serve(ctx, conn)
	defer cancel(nil)
	emit := func(e transcribe.Event) error { return write(e) }

	for {
		msg, err := r.next(ctx)
		if err != nil {
			return o.ended(err)
		}
		if err := o.uploadJob(ctx, r, msg, emit); err != nil {
			if appErr, ok := apperrors.AsAppError(err); ok && apperrors.EndsSession(appErr.Code) {
				return err
			}
			if cause := context.Cause(ctx); cause != nil {
				return o.ended(cause)
			}
		}
	}
}

// ended maps the reasons a session stops to its return value: a disconnect
// is the normal end of a session.
func (o *Orchestrator) ended(err error) error {
	if errors.Is(err, ErrDisconnected) {
		return nil
	}
	return err
}

func (o *Orchestrator) uploadJob(ctx context.Context, r *reader, first inbound, emit emitFunc) error {
	ctx, j := o.newJob(ctx, KindUpload, emit)

	if first.typ != TextMessage {
		return j.fail(ctx, apperrors.Protocol("expected a JSON message with a filename before the file data"))
	}
	var req uploadRequest
	if err := json.Unmarshal(first.data, &req); err != nil {
		return j.fail(ctx, apperrors.Protocol("malformed JSON message"))
	}
	if err := j.to(StateIngesting); err != nil {
		return j.fail(ctx, err)
	}

	payload, err := r.next(ctx)
	if err != nil {
		return j.fail(ctx, err)
	}
	if payload.typ != BinaryMessage {
		return j.fail(ctx, apperrors.Protocol("expected binary file data after the filename"))
	}
	if err := validation.Validate(req); err != nil {
		return j.fail(ctx, apperrors.InvalidSource(req.Filename, "invalid filename").WithCause(err))
	}
	if int64(len(payload.data)) > o.cfg.MaxUploadBytes {
		return j.fail(ctx, apperrors.InvalidSource(req.Filename, "file is too large"))
	}
	if len(payload.data) == 0 {
		return j.fail(ctx, apperrors.InvalidSource(req.Filename, "file is empty"))
	}

	in := j.scope.Acquire(filepath.Ext(req.Filename))
	if err := os.WriteFile(in.Path(), payload.data, 0o600); err != nil {
		return j.fail(ctx, apperrors.Ingest(err))
	}
	j.log.Debug("upload saved", map[string]interface{}{"bytes": len(payload.data), "filename": req.Filename})

	wav, err := o.normalize(ctx, j, in.Path())
	if err != nil {
		return j.fail(ctx, err)
	}
	return o.recognize(ctx, j, wav)
}
