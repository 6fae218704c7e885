package session

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/transcribe"
	"github.com/kbukum/audioscribe/validation"
)

// Transcript is the result of a single-shot job.
type Transcript struct {
	// Text joins the non-empty segment texts with single spaces.
	Text string `json:"transcription"`
	// Segments is the number of segments the audio was split into.
	Segments int `json:"segments"`
	// FailedSegments lists the indices of segments that could not be
	// recognized. Their text is missing from Text.
	FailedSegments []int `json:"failed_segments"`
}

// TranscribeFile runs one job to completion without incremental events. The
// returned error is an AppError suitable for an HTTP response.
func (o *Orchestrator) TranscribeFile(ctx context.Context, filename string, r io.Reader) (*Transcript, error) {
	ctx, j := o.newJob(ctx, KindSingle, nil)

	if err := j.to(StateIngesting); err != nil {
		return nil, j.fail(ctx, err)
	}
	if err := validation.Validate(uploadRequest{Filename: filename}); err != nil {
		return nil, j.fail(ctx, apperrors.InvalidSource(filename, "invalid filename").WithCause(err))
	}

	in, f, err := o.deps.Temp.Create(filepath.Ext(filename))
	if err != nil {
		return nil, j.fail(ctx, apperrors.Ingest(err))
	}
	j.scope.Track(in)
	n, err := io.Copy(f, io.LimitReader(r, o.cfg.MaxUploadBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	switch {
	case err != nil:
		return nil, j.fail(ctx, apperrors.Ingest(err))
	case n > o.cfg.MaxUploadBytes:
		return nil, j.fail(ctx, apperrors.InvalidSource(filename, "file is too large"))
	case n == 0:
		return nil, j.fail(ctx, apperrors.InvalidSource(filename, "file is empty"))
	}

	wav, err := o.normalize(ctx, j, in.Path())
	if err != nil {
		return nil, j.fail(ctx, err)
	}

	out := &Transcript{FailedSegments: []int{}}
	var texts []string
	j.emit = func(e transcribe.Event) error {
		switch e.Kind {
		case transcribe.KindText:
			out.Segments++
			if t := strings.TrimSpace(e.Text); t != "" {
				texts = append(texts, t)
			}
		case transcribe.KindError:
			out.Segments++
			out.FailedSegments = append(out.FailedSegments, e.Segment)
		}
		return nil
	}
	if err := o.recognize(ctx, j, wav); err != nil {
		return nil, err
	}
	out.Text = strings.Join(texts, " ")
	return out, nil
}
