package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-proxy/internal/sse"
	"github.com/capitalize-ai/chat-proxy/pkg/logger"
	"github.com/capitalize-ai/chat-proxy/pkg/metrics"
)

// chunkSize is the relay read buffer. One chunk is in flight at a time.
const chunkSize = 32 * 1024

// ErrClientWrite marks a failure to deliver a chunk to the client.
var ErrClientWrite = errors.New("client write failed")

// ChunkWriter receives relayed bytes.
type ChunkWriter interface {
	io.Writer
	Flush()
}

// EventWriter is the client side of a relayed stream.
type EventWriter interface {
	ChunkWriter
	WriteEvent(ev sse.Event) error
}

// Relay copies src to dst one chunk at a time, flushing after every chunk, so
// nothing is read before the previous chunk was delivered. It returns the
// number of bytes delivered. A clean end of src returns a nil error; a failed
// delivery is wrapped in ErrClientWrite.
func Relay(ctx context.Context, src io.Reader, dst ChunkWriter) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr == nil && w < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return total, fmt.Errorf("%w: %w", ErrClientWrite, werr)
			}
			dst.Flush()
		}

		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// Result summarizes one relayed call.
type Result struct {
	Status     int
	Bytes      int64
	Err        error
	ClientGone bool
	// Completed is set once the upstream has sent its own done event.
	Completed bool
}

// doneMarkers match a done event line. The leading newline anchors the match
// to a line start; doneTracker seeds its window with one.
var doneMarkers = [][]byte{
	[]byte("\nevent: done\n"),
	[]byte("\nevent: done\r"),
	[]byte("\nevent:done\n"),
	[]byte("\nevent:done\r"),
}

const doneWindow = len("\nevent: done\n") - 1

// doneTracker passes chunks through and notes whether the upstream's done
// event went by. A marker may straddle two chunks.
type doneTracker struct {
	EventWriter
	tail []byte
	done bool
}

func newDoneTracker(dst EventWriter) *doneTracker {
	return &doneTracker{EventWriter: dst, tail: []byte("\n")}
}

func (d *doneTracker) Write(p []byte) (int, error) {
	n, err := d.EventWriter.Write(p)
	if d.done || n == 0 {
		return n, err
	}

	window := append(d.tail, p[:n]...)
	for _, m := range doneMarkers {
		if bytes.Contains(window, m) {
			d.done = true
			break
		}
	}
	if len(window) > doneWindow {
		window = window[len(window)-doneWindow:]
	}
	d.tail = append(d.tail[:0:0], window...)

	return n, err
}

// Relayer runs an upstream call and relays its body to the client.
type Relayer struct {
	client *Client
	logger *logger.Logger
	diag   *logger.Logger
	tracer trace.Tracer
}

// NewRelayer creates a relayer. diag receives upstream transport failures.
func NewRelayer(client *Client, log, diag *logger.Logger) *Relayer {
	return &Relayer{
		client: client,
		logger: log,
		diag:   diag,
		tracer: otel.Tracer("github.com/capitalize-ai/chat-proxy/internal/upstream"),
	}
}

// Stream opens spec and relays the response body to dst unchanged. A transport
// failure, before or after the first byte, is appended to dst as one error
// event, unless the upstream had already sent done. Nothing is written once the
// client is gone. The call is never retried.
// log may carry request fields; nil uses the relayer's logger.
func (r *Relayer) Stream(ctx context.Context, spec *CallSpec, dst EventWriter, log *logger.Logger) Result {
	if log == nil {
		log = r.logger
	}

	ctx, span := r.tracer.Start(ctx, "upstream.stream")
	defer span.End()

	start := time.Now()

	resp, err := r.client.Open(ctx, spec)
	if err != nil {
		return r.finish(ctx, span, dst, log, Result{Err: err}, start)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Warn("upstream returned non-success status, relaying body as-is",
			zap.Int("status", resp.StatusCode),
		)
	}

	tracked := newDoneTracker(dst)
	n, err := Relay(ctx, resp.Body, tracked)
	return r.finish(ctx, span, dst, log, Result{Status: resp.StatusCode, Bytes: n, Err: err, Completed: tracked.done}, start)
}

func (r *Relayer) finish(ctx context.Context, span trace.Span, dst EventWriter, log *logger.Logger, res Result, start time.Time) Result {
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int64("relay.bytes", res.Bytes))

	if res.Err == nil {
		metrics.RecordUpstreamStream(statusLabel(res), elapsed.Seconds(), res.Bytes)
		log.Info("upstream stream complete",
			zap.Int("status", res.Status),
			zap.Int64("bytes", res.Bytes),
			zap.Duration("duration", elapsed),
		)
		return res
	}

	if ctx.Err() != nil || errors.Is(res.Err, ErrClientWrite) {
		res.ClientGone = true
		metrics.RecordUpstreamStream(statusLabel(res), elapsed.Seconds(), res.Bytes)
		log.Info("client disconnected during upstream stream",
			zap.Int64("bytes", res.Bytes),
			zap.Error(res.Err),
		)
		return res
	}

	span.RecordError(res.Err)
	span.SetStatus(codes.Error, "upstream transport error")
	metrics.RecordUpstreamStream(statusLabel(res), elapsed.Seconds(), res.Bytes)

	log.Error("upstream transport error", zap.Int64("bytes", res.Bytes), zap.Error(res.Err))
	r.diag.Error("upstream transport error", zap.String("detail", res.Err.Error()), zap.Int64("bytes", res.Bytes))

	// The client already has a terminal event.
	if res.Completed {
		return res
	}

	if err := dst.WriteEvent(sse.ErrorNotice(res.Err.Error())); err != nil {
		log.Debug("failed to write error event", zap.Error(err))
	}

	return res
}

func statusLabel(res Result) string {
	switch {
	case res.ClientGone:
		return "client_gone"
	case res.Err != nil:
		return "transport_error"
	case res.Status >= http.StatusBadRequest:
		return "upstream_error"
	default:
		return "ok"
	}
}
