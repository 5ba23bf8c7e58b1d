package messaging

import (
	"context"
	"encoding/json"

	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/monitor"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

// Controller is the detector side of the control actions.
type Controller interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Enabled() bool
	ResetStats(ctx context.Context) (stats.Counters, error)
	Continue(ctx context.Context, handle string) error
	List() []monitor.Info
}

// StatsService reads and updates the counters.
type StatsService interface {
	Snapshot(ctx context.Context) (stats.Counters, error)
	Apply(ctx context.Context, name string, delta int64) (stats.Counters, error)
	Degraded() bool
}

// Router dispatches requests by their action field.
type Router struct {
	ctrl  Controller
	stats StatsService
}

var _ ControlServer = (*Router)(nil)

// NewRouter creates a router over the controller and stats service.
func NewRouter(ctrl Controller, st StatsService) *Router {
	return &Router{ctrl: ctrl, stats: st}
}

// Send implements ControlServer.
func (r *Router) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	action := req.GetFields()["action"].GetStringValue()
	ctx, span := trace.StartSpan(ctx, "control."+action)
	defer span.End()

	body, err := r.dispatch(ctx, action, req.GetFields())
	if err != nil {
		span.SetAttr("error", err.Error())
		trace.Logger(ctx).Warn("control request failed", "action", action, "error", err)
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	body["success"] = true
	return toStruct(body)
}

func (r *Router) dispatch(ctx context.Context, action string, f map[string]*structpb.Value) (map[string]any, error) {
	switch action {
	case ActionEnable:
		return r.enabled(r.ctrl.Enable(ctx))
	case ActionDisable:
		return r.enabled(r.ctrl.Disable(ctx))
	case ActionResetStats:
		c, err := r.ctrl.ResetStats(ctx)
		return r.counters(c, err)
	case ActionGetStats:
		c, err := r.stats.Snapshot(ctx)
		return r.counters(c, err)
	case ActionUpdateStats:
		name := f["stat"].GetStringValue()
		if name == "" {
			return nil, apperrors.New(apperrors.InvalidArgument, "stat is required")
		}
		delta := int64(1)
		if v, ok := f["delta"]; ok {
			delta = int64(v.GetNumberValue())
		}
		c, err := r.stats.Apply(ctx, name, delta)
		return r.counters(c, err)
	case ActionContinue:
		handle := f["handle"].GetStringValue()
		if handle == "" {
			return nil, apperrors.New(apperrors.InvalidArgument, "handle is required")
		}
		return nil, r.ctrl.Continue(ctx, handle)
	case ActionListDetectors:
		return map[string]any{"detectors": r.ctrl.List()}, nil
	case "":
		return nil, apperrors.New(apperrors.InvalidArgument, "action is required")
	default:
		return nil, apperrors.New(apperrors.ActionUnknown, "unknown action").WithMetadata("action", action)
	}
}

func (r *Router) enabled(err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"enabled": r.ctrl.Enabled()}, nil
}

func (r *Router) counters(c stats.Counters, err error) (map[string]any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]any{"stats": c, "degraded": r.stats.Degraded()}, nil
}

// toStruct converts a JSON-shaped map into a Struct. Values go through
// encoding/json so tagged Go structs keep their wire names.
func toStruct(body map[string]any) (*structpb.Struct, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode response")
	}
	return out, nil
}
