package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/polis-chain/internal/governance"
	"github.com/polisai/polis-chain/pkg/domain"
	"github.com/polisai/polis-chain/pkg/telemetry"
)

func fanOutPlan(n int, dest string) domain.Plan {
	plan := domain.Plan{Primary: cliEvent().WithID("0"), Policy: domain.PolicyFanOut}
	for i := 1; i < n; i++ {
		plan.Deliveries = append(plan.Deliveries, domain.Delivery{
			Destination: dest,
			Event:       cliEvent().WithID(strconv.Itoa(i)),
		})
	}
	return plan
}

func newTestDispatcher(t *testing.T, sender domain.Sender, metrics *telemetry.DispatchMetrics, limit int) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherConfig{
		Sender:         sender,
		Logger:         discardLogger(),
		Metrics:        metrics,
		MaxConcurrency: limit,
	})
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_RequiresSender(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{})
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestDispatch_DeliversEveryCopy(t *testing.T) {
	sender := newRecordingSender()
	metrics := telemetry.NewDispatchMetrics()
	d := newTestDispatcher(t, sender, metrics, 0)

	d.Dispatch(context.Background(), fanOutPlan(5, "http://dest-x"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))

	posts := sender.Posts()
	require.Len(t, posts, 4)
	ids := map[string]bool{}
	for _, p := range posts {
		assert.Equal(t, "http://dest-x", p.Destination)
		ids[p.Event.ID] = true
	}
	assert.Equal(t, map[string]bool{"1": true, "2": true, "3": true, "4": true}, ids)

	expected := `
# HELP polis_chain_deliveries_total Outbound event deliveries by mode and outcome
# TYPE polis_chain_deliveries_total counter
polis_chain_deliveries_total{mode="detached",outcome="delivered"} 4
`
	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "polis_chain_deliveries_total"))
}

func TestDispatch_SurvivesCancelledRequest(t *testing.T) {
	sender := newRecordingSender()
	d := newTestDispatcher(t, sender, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, fanOutPlan(3, "http://dest-x"))
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	require.NoError(t, d.Drain(drainCtx))
	assert.Len(t, sender.Posts(), 2)
}

func TestDispatch_DropsFailedDeliveries(t *testing.T) {
	sender := newRecordingSender()
	sender.fail["http://down"] = domain.ErrDeliveryFailed
	d := newTestDispatcher(t, sender, nil, 0)

	plan := fanOutPlan(3, "http://down")
	plan.Deliveries = append(plan.Deliveries, domain.Delivery{Destination: "http://up", Event: cliEvent()})
	d.Dispatch(context.Background(), plan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))

	posts := sender.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "http://up", posts[0].Destination)
}

func TestDispatch_BoundsConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	release := make(chan struct{})
	sender := domain.SenderFunc(func(context.Context, string, domain.Event) error {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inflight.Add(-1)
		return nil
	})
	d := newTestDispatcher(t, sender, nil, 2)

	d.Dispatch(context.Background(), fanOutPlan(9, "http://dest-x"))
	require.Eventually(t, func() bool { return inflight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))
	assert.Equal(t, int32(2), peak.Load())
}

func TestDispatchAndWait_JoinsFailures(t *testing.T) {
	sender := newRecordingSender()
	sender.fail["http://down"] = domain.ErrDeliveryFailed
	d := newTestDispatcher(t, sender, nil, 0)

	err := d.DispatchAndWait(context.Background(),
		domain.Delivery{Destination: "http://up", Event: cliEvent()},
		domain.Delivery{Destination: "http://down", Event: cliEvent()},
	)

	require.ErrorIs(t, err, domain.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "http://down")
	assert.Len(t, sender.Posts(), 1)
}

func TestDispatchAndWait_ReturnsAfterEveryPost(t *testing.T) {
	var (
		mu   sync.Mutex
		done []string
	)
	sender := domain.SenderFunc(func(_ context.Context, dest string, _ domain.Event) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		done = append(done, dest)
		mu.Unlock()
		return nil
	})
	d := newTestDispatcher(t, sender, nil, 0)

	require.NoError(t, d.DispatchAndWait(context.Background(),
		domain.Delivery{Destination: "http://a", Event: cliEvent()},
		domain.Delivery{Destination: "http://b", Event: cliEvent()},
	))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"http://a", "http://b"}, done)
}

func TestDispatch_RecordsOutcomes(t *testing.T) {
	sender := newRecordingSender()
	sender.fail["http://down"] = domain.ErrDeliveryFailed
	sender.fail["http://open"] = errors.Join(domain.ErrDeliveryFailed, governance.ErrCircuitOpen)
	metrics := telemetry.NewDispatchMetrics()
	d := newTestDispatcher(t, sender, metrics, 0)

	_ = d.DispatchAndWait(context.Background(),
		domain.Delivery{Destination: "http://up", Event: cliEvent()},
		domain.Delivery{Destination: "http://down", Event: cliEvent()},
		domain.Delivery{Destination: "http://open", Event: cliEvent()},
	)

	expected := `
# HELP polis_chain_deliveries_total Outbound event deliveries by mode and outcome
# TYPE polis_chain_deliveries_total counter
polis_chain_deliveries_total{mode="awaited",outcome="circuit_open"} 1
polis_chain_deliveries_total{mode="awaited",outcome="delivered"} 1
polis_chain_deliveries_total{mode="awaited",outcome="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "polis_chain_deliveries_total"))
}

func TestDispatch_LogsDeliveryPosition(t *testing.T) {
	var buf bytes.Buffer
	d, err := NewDispatcher(DispatcherConfig{
		Sender: newRecordingSender(),
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	require.NoError(t, err)

	d.Dispatch(context.Background(), fanOutPlan(5, "http://dest-x"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Drain(ctx))

	positions := map[float64]bool{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		if record["msg"] != "posting event" {
			continue
		}
		assert.Equal(t, float64(4), record["deliveries"])
		positions[record["delivery"].(float64)] = true
	}
	assert.Equal(t, map[float64]bool{1: true, 2: true, 3: true, 4: true}, positions)
}
