package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-proxy/internal/config"
	"github.com/capitalize-ai/chat-proxy/internal/decisionlog"
	"github.com/capitalize-ai/chat-proxy/internal/middleware"
	"github.com/capitalize-ai/chat-proxy/internal/model"
	"github.com/capitalize-ai/chat-proxy/internal/moderation"
	"github.com/capitalize-ai/chat-proxy/internal/sse"
	"github.com/capitalize-ai/chat-proxy/internal/upstream"
	"github.com/capitalize-ai/chat-proxy/pkg/logger"
	"github.com/capitalize-ai/chat-proxy/pkg/metrics"
)

// Moderator decides whether a message may be forwarded.
type Moderator interface {
	Check(ctx context.Context, text string) moderation.Decision
}

// Streamer relays an upstream call to the client.
type Streamer interface {
	Stream(ctx context.Context, spec *upstream.CallSpec, dst upstream.EventWriter, log *logger.Logger) upstream.Result
}

// ChatHandler handles the streaming chat endpoint.
type ChatHandler struct {
	upstream config.UpstreamConfig
	gate     Moderator
	relay    Streamer
	recorder decisionlog.Recorder
	logger   *logger.Logger
	now      func() time.Time
}

// NewChatHandler creates a new chat handler. recorder may be nil.
func NewChatHandler(
	cfg config.UpstreamConfig,
	gate Moderator,
	relay Streamer,
	recorder decisionlog.Recorder,
	log *logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		upstream: cfg,
		gate:     gate,
		relay:    relay,
		recorder: recorder,
		logger:   log,
		now:      time.Now,
	}
}

// Chat handles POST /api/v1/chat.
//
// The response is always an event stream. An invalid body gets one error
// event. A blocked message gets the refusal delta followed by done and never
// reaches the upstream. Anything else is relayed from the upstream verbatim.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("cannot stream response", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sw.Close()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	req, err := model.DecodeChatRequest(r.Body)
	if err != nil {
		h.logger.Info("rejected chat request",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		h.emit(sw, sse.ErrorNotice(sse.InvalidInputDetail))
		return
	}

	log := h.logger.WithRequest(correlationID, req.UserID)

	decision := h.gate.Check(ctx, req.Message)
	log.Info("moderation decision",
		zap.String("outcome", string(decision.Outcome)),
		zap.String("reason", decision.Reason),
	)

	h.record(ctx, log, r, correlationID, req, decision)

	if decision.Blocked {
		h.emit(sw, sse.BlockNotice(req.ConversationID))
		h.emit(sw, sse.Done())
		return
	}

	spec, err := upstream.BuildCallSpec(h.upstream, req)
	if err != nil {
		log.Error("failed to build upstream call", zap.Error(err))
		h.emit(sw, sse.ErrorNotice(err.Error()))
		return
	}

	res := h.relay.Stream(ctx, spec, sw, log)
	log.Info("chat stream finished",
		zap.Int("upstream_status", res.Status),
		zap.Int64("bytes", sw.Written()),
		zap.Bool("client_gone", res.ClientGone),
	)
}

func (h *ChatHandler) emit(sw *sse.Writer, ev sse.Event) {
	if err := sw.WriteEvent(ev); err != nil && !errors.Is(err, sse.ErrClosed) {
		h.logger.Debug("failed to write event", zap.String("event", ev.Name), zap.Error(err))
	}
}

// record writes the decision before anything is emitted. Failures are logged
// and otherwise ignored.
func (h *ChatHandler) record(
	ctx context.Context,
	log *logger.Logger,
	r *http.Request,
	correlationID string,
	req *model.ChatRequest,
	decision moderation.Decision,
) {
	if h.recorder == nil {
		return
	}

	action := model.ActionForwarded
	if decision.Blocked {
		action = model.ActionTerminated
	}

	rec := &model.DecisionRecord{
		ID:             uuid.New().String(),
		Time:           h.now(),
		CorrelationID:  correlationID,
		ClientIP:       clientIP(r),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Blocked:        decision.Blocked,
		Reason:         decision.Reason,
		Outcome:        string(decision.Outcome),
		Message:        model.TruncateInput(req.Message),
		Action:         action,
	}

	if err := h.recorder.Record(ctx, rec); err != nil {
		log.Warn("failed to record decision", zap.Error(err))
	}
}
