package messaging

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/detector"
	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/monitor"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/trace"
)

type fakeController struct {
	mu        sync.Mutex
	enabled   bool
	continued []string
	resets    int
}

func (f *fakeController) Enable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
	return nil
}

func (f *fakeController) Disable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	return nil
}

func (f *fakeController) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeController) ResetStats(context.Context) (stats.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return stats.Counters{}, nil
}

func (f *fakeController) Continue(_ context.Context, handle string) error {
	if handle != "h1" {
		return apperrors.New(apperrors.NotFound, "no such detector").WithMetadata("handle", handle)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, handle)
	return nil
}

func (f *fakeController) List() []monitor.Info {
	return []monitor.Info{{
		Snapshot: detector.Snapshot{Handle: "h1", VideoID: "abc", State: detector.Monitoring, Enabled: true},
		URL:      "https://youtu.be/abc",
	}}
}

type fakeStats struct {
	mu       sync.Mutex
	counters stats.Counters
}

func (f *fakeStats) Snapshot(context.Context) (stats.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters, nil
}

func (f *fakeStats) Apply(_ context.Context, name string, delta int64) (stats.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch name {
	case stats.FlashesDetected:
		f.counters.FlashesDetected += delta
	case stats.WarningsIssued:
		f.counters.WarningsIssued += delta
	default:
		return stats.Counters{}, apperrors.New(apperrors.StatUnknown, "unknown stat").WithMetadata("stat", name)
	}
	return f.counters, nil
}

func (f *fakeStats) Degraded() bool { return true }

func setup(t *testing.T) (*Client, *fakeController, *fakeStats) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(trace.UnaryServerInterceptor()))
	ctrl := &fakeController{enabled: true}
	st := &fakeStats{}
	RegisterControlServer(srv, NewRouter(ctrl, st))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, ctrl, st
}

func TestEnableDisable(t *testing.T) {
	c, ctrl, _ := setup(t)
	ctx := context.Background()

	ack, err := c.Send(ctx, ActionDisable, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Success || ack.Body["enabled"] != false || ctrl.Enabled() {
		t.Errorf("disable ack = %+v", ack)
	}
	if _, ok := ack.Body["success"]; ok {
		t.Error("success should be lifted out of Body")
	}

	ack, err = c.Send(ctx, ActionEnable, nil)
	if err != nil || ack.Body["enabled"] != true {
		t.Errorf("enable ack = %+v, err = %v", ack, err)
	}
}

func TestStatsActions(t *testing.T) {
	c, ctrl, _ := setup(t)
	ctx := context.Background()

	if _, err := c.Send(ctx, ActionUpdateStats, map[string]any{"stat": stats.FlashesDetected, "delta": 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(ctx, ActionUpdateStats, map[string]any{"stat": stats.WarningsIssued}); err != nil {
		t.Fatal(err)
	}

	got, degraded, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.FlashesDetected != 4 || got.WarningsIssued != 1 || !degraded {
		t.Errorf("stats = %+v degraded = %v", got, degraded)
	}

	if _, err := c.Send(ctx, ActionResetStats, nil); err != nil {
		t.Fatal(err)
	}
	if ctrl.resets != 1 {
		t.Errorf("resets = %d", ctrl.resets)
	}
}

func TestErrorsCrossTheWire(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		action string
		fields map[string]any
		want   apperrors.Code
	}{
		{"unknown action", "explode", nil, apperrors.ActionUnknown},
		{"missing action", "", nil, apperrors.InvalidArgument},
		{"unknown stat", ActionUpdateStats, map[string]any{"stat": "bogus"}, apperrors.StatUnknown},
		{"missing stat", ActionUpdateStats, nil, apperrors.InvalidArgument},
		{"missing handle", ActionContinue, nil, apperrors.InvalidArgument},
		{"unknown handle", ActionContinue, map[string]any{"handle": "zzz"}, apperrors.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Send(ctx, tt.action, tt.fields)
			if !apperrors.IsCode(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestContinueAndList(t *testing.T) {
	c, ctrl, _ := setup(t)
	ctx := context.Background()

	if _, err := c.Send(ctx, ActionContinue, map[string]any{"handle": "h1"}); err != nil {
		t.Fatal(err)
	}
	if len(ctrl.continued) != 1 {
		t.Errorf("continued = %v", ctrl.continued)
	}

	list, err := c.Detectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Handle != "h1" || list[0].URL != "https://youtu.be/abc" || !list[0].Enabled {
		t.Errorf("detectors = %+v", list)
	}
}

func TestNotifyUnavailableIsNonFatal(t *testing.T) {
	c, err := Dial("passthrough:///nowhere", grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: net.UnknownNetworkError("closed")}
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.Send(ctx, ActionGetStats, nil); err == nil {
		t.Error("Send to an unreachable receiver should fail")
	}

	// Must return immediately and never panic.
	c.Notify(context.Background(), ActionEnable, nil)
}

func TestRemoteStatsForwards(t *testing.T) {
	c, ctrl, _ := setup(t)
	ctx := context.Background()
	rs := NewRemoteStats(c, "bufnet")

	rs.Notify(ctx, stats.FlashesDetected, 3)
	rs.Notify(ctx, stats.WarningsIssued, 1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _, err := c.Stats(ctx)
		if err == nil && got.FlashesDetected == 3 && got.WarningsIssued == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("forwarded stats = %+v, %v", got, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := rs.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	ctrl.mu.Lock()
	resets := ctrl.resets
	ctrl.mu.Unlock()
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestRemoteStatsResetUnreachable(t *testing.T) {
	c, err := Dial("passthrough:///nowhere", grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: net.UnknownNetworkError("closed")}
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = NewRemoteStats(c, "peer:50061").Reset(ctx)
	if err == nil || !strings.Contains(err.Error(), "reset stats on peer:50061") {
		t.Errorf("err = %v", err)
	}
}
