package sse

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
)

var log = logging.New("trellis.sse")

// Pump moves events from src to w in production order, flushing after each
// one. It returns nil when src is exhausted, the context error when ctx is
// cancelled, and a stream_production_failure error when src fails; in the
// last case a final error frame is written if the writer still accepts it.
// src is closed exactly once before Pump returns.
func Pump(ctx context.Context, src api.EventSource, w EventWriter) (err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.WarnErr(cerr, "closing event source")
		}
	}()

	sent := 0
	defer func() {
		log.Debugf("event stream ended after %d events: %v", sent, err)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if werr := w.WriteEvent(ctx, ErrorEvent()); werr == nil {
				_ = w.Flush()
			}
			return api.NewStreamError(err)
		}

		if err := w.WriteEvent(ctx, ev); err != nil {
			return fmt.Errorf("writing event: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flushing event: %w", err)
		}
		sent++
	}
}
