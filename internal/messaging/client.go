package messaging

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/monitor"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/resilience"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Ack is a successful response. Body holds every field but success.
type Ack struct {
	Success bool
	Body    map[string]any
}

// Decode unmarshals Body[key] into v.
func (a Ack) Decode(key string, v any) error {
	raw, err := json.Marshal(a.Body[key])
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Internal, "re-encode %s", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrapf(err, apperrors.Internal, "decode %s", key)
	}
	return nil
}

// Client sends control requests to a daemon.
type Client struct {
	conn    *grpc.ClientConn
	breaker *resilience.Breaker
}

// Dial connects to addr. Extra options are appended to the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "dial control service").WithMetadata("addr", addr)
	}
	return &Client{conn: conn, breaker: resilience.New(resilience.DefaultConfig())}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send performs one request and waits for the response.
func (c *Client) Send(ctx context.Context, action string, fields map[string]any) (Ack, error) {
	msg := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		msg[k] = v
	}
	msg["action"] = action
	req, err := structpb.NewStruct(msg)
	if err != nil {
		return Ack{}, apperrors.Wrap(err, apperrors.InvalidArgument, "encode request").WithMetadata("action", action)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, SendMethod, req, resp); err != nil {
		return Ack{}, apperrors.FromGRPCError(err)
	}

	body := resp.AsMap()
	ok, _ := body["success"].(bool)
	delete(body, "success")
	if !ok {
		return Ack{Body: body}, apperrors.New(apperrors.Internal, "request not acknowledged").WithMetadata("action", action)
	}
	return Ack{Success: true, Body: body}, nil
}

// Notify sends without waiting. An unreachable receiver is logged and
// otherwise ignored; repeated failures open the breaker and drop sends
// until it resets.
func (c *Client) Notify(ctx context.Context, action string, fields map[string]any) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, NotifyTimeout)
		defer cancel()
		var rejected error
		err := c.breaker.Execute(func() error {
			_, err := c.Send(ctx, action, fields)
			if err != nil && !resilience.IsRetryable(err) {
				rejected = err // receiver answered; not a transport failure
				return nil
			}
			return err
		})
		if err == nil {
			err = rejected
		}
		if err != nil {
			trace.Logger(ctx).Debug("notify dropped", "action", action, "error", err)
		}
	}()
}

// Stats fetches the counters.
func (c *Client) Stats(ctx context.Context) (stats.Counters, bool, error) {
	ack, err := c.Send(ctx, ActionGetStats, nil)
	if err != nil {
		return stats.Counters{}, false, err
	}
	var out stats.Counters
	if err := ack.Decode("stats", &out); err != nil {
		return stats.Counters{}, false, err
	}
	degraded, _ := ack.Body["degraded"].(bool)
	return out, degraded, nil
}

// Detectors lists the attached detectors.
func (c *Client) Detectors(ctx context.Context) ([]monitor.Info, error) {
	ack, err := c.Send(ctx, ActionListDetectors, nil)
	if err != nil {
		return nil, err
	}
	var out []monitor.Info
	if err := ack.Decode("detectors", &out); err != nil {
		return nil, err
	}
	return out, nil
}
