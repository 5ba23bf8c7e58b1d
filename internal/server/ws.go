package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

// ContinueMessage asks to dismiss a warning and resume the video.
type ContinueMessage struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
}

// AckMessage answers a continue or control message.
type AckMessage struct {
	Type    string         `json:"type"`
	Action  string         `json:"action"`
	Success bool           `json:"success"`
	Body    map[string]any `json:"body,omitempty"`
}

// ErrorMessage reports a rejected message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// HelloMessage is sent once on connect.
type HelloMessage struct {
	Type     string `json:"type"`
	Enabled  bool   `json:"enabled"`
	Degraded bool   `json:"degraded"`
	Data     any    `json:"data,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ob := &observer{
		conn:    conn,
		out:     make(chan any, ObserverBuffer),
		limiter: newRateLimiter(RateLimitMessages, RateLimitWindow),
		ip:      remoteIP(r),
	}

	// Get trace context from HTTP upgrade request
	baseCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	ob.send(HelloMessage{Type: "hello", Enabled: s.deps.Control.Enabled(), Degraded: s.deps.Stats.Degraded(), Data: s.deps.Control.List()})

	s.mu.Lock()
	s.observers[ob] = struct{}{}
	s.mu.Unlock()
	s.observersChanged(1)

	defer func() {
		s.mu.Lock()
		delete(s.observers, ob)
		s.mu.Unlock()
		s.observersChanged(-1)
	}()

	go s.writeLoop(baseCtx, cancel, ob)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		now := s.now()
		if !ob.limiter.allow(now) || !s.ipLimits.allow(ob.ip, now) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			ob.send(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			ob.send(ErrorMessage{Type: "error", Code: apperrors.InvalidArgument.String(), Message: "malformed message"})
			continue
		}

		// Continue the caller's trace when one is supplied
		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			ctx = trace.WithContext(ctx, tc)
		}

		switch base.Type {
		case "continue":
			var m ContinueMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			s.handleContinueMessage(ctx, ob, m)
		case "control":
			s.handleControlMessage(ctx, ob, msg)
		default:
			ob.send(ErrorMessage{Type: "error", Code: apperrors.ActionUnknown.String(), Message: "unknown message type " + base.Type})
		}
	}
}

func (s *Server) handleContinueMessage(ctx context.Context, ob *observer, m ContinueMessage) {
	ctx, span := trace.StartSpan(ctx, "ws_continue")
	defer span.End()
	span.SetAttr("handle", m.Handle)

	if err := s.deps.Control.Continue(ctx, m.Handle); err != nil {
		span.SetAttr("error", err.Error())
		ob.send(errorMessage(err))
		return
	}
	ob.send(AckMessage{Type: "ack", Action: "continue", Success: true, Body: map[string]any{"handle": m.Handle}})
}

func (s *Server) handleControlMessage(ctx context.Context, ob *observer, raw json.RawMessage) {
	ctx, span := trace.StartSpan(ctx, "ws_control")
	defer span.End()

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		ob.send(ErrorMessage{Type: "error", Code: apperrors.InvalidArgument.String(), Message: "malformed control message"})
		return
	}
	delete(fields, "type")
	delete(fields, "trace_id")
	action, _ := fields["action"].(string)
	span.SetAttr("action", action)

	req, err := structpb.NewStruct(fields)
	if err != nil {
		ob.send(ErrorMessage{Type: "error", Code: apperrors.InvalidArgument.String(), Message: err.Error()})
		return
	}
	resp, err := s.deps.Router.Send(ctx, req)
	if err != nil {
		span.SetAttr("error", err.Error())
		ob.send(errorMessage(err))
		return
	}
	body := resp.AsMap()
	ok, _ := body["success"].(bool)
	delete(body, "success")
	ob.send(AckMessage{Type: "ack", Action: action, Success: ok, Body: body})
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Type: "error", Code: apperrors.CodeOf(err).String(), Message: err.Error()}
}

// send queues v for the observer, dropping it if the queue is full.
func (o *observer) send(v any) bool {
	select {
	case o.out <- v:
		return true
	default:
		return false
	}
}

// writeLoop drains the observer queue. A failed write closes the connection.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, ob *observer) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-ob.out:
			wctx, wcancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, ob.conn, v)
			wcancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

func (s *Server) broadcastEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case ev := <-s.deps.Hub.Events():
			s.mu.RLock()
			for ob := range s.observers {
				if !ob.send(ev) {
					trace.Logger(context.Background()).Debug("observer queue full, event dropped", "ip", ob.ip, "type", ev.Type)
				}
			}
			s.mu.RUnlock()
		}
	}
}

func (s *Server) observersChanged(delta int64) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Observers.Add(delta)
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
