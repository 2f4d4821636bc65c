package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Custos/imthedev-sub000/internal/event"
	"github.com/Custos/imthedev-sub000/internal/orchestration"
	"github.com/Custos/imthedev-sub000/internal/testutil"
)

func newRecorder(t *testing.T) (*event.Bus, *Metrics, *Recorder) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	m := NewMetrics(prometheus.NewRegistry())
	r := NewRecorder(bus, m)
	r.Start()
	t.Cleanup(r.Stop)
	return bus, m, r
}

func TestRecorder_CommandLifecycle(t *testing.T) {
	bus, m, _ := newRecorder(t)

	bus.Emit(event.NewCommandProposedEvent("c1", "/sc:build", "build it", 0.9, nil, ""))
	bus.Emit(event.NewCommandApprovedEvent("c1", "/sc:build", "auto", ""))
	bus.Emit(event.NewCommandProposedEvent("c2", "/sc:test", "test it", 0.4, nil, ""))
	bus.Emit(event.NewCommandRejectedEvent("c2", "/sc:test", "user", "not now"))
	bus.Emit(event.NewCommandModifiedEvent("c3", "/sc:build", "/sc:build --uc", "user"))
	bus.Emit(event.NewCommandValidatedEvent("c1", "/sc:build", true, nil, nil))
	bus.Emit(event.NewCommandValidatedEvent("c4", "/sc:deploy", false, []string{"unknown command kind"}, []string{"/sc:help"}))
	testutil.WaitBus(t, bus)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.Proposals))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Decisions.WithLabelValues("approved", "auto")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Decisions.WithLabelValues("rejected", "user")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Decisions.WithLabelValues("modified", "user")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Validations.WithLabelValues("true")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Validations.WithLabelValues("false")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.Events.WithLabelValues(event.TypeCommandProposed)))
	assert.Equal(t, 1, promtest.CollectAndCount(m.ProposalConfidence))
}

func TestRecorder_Executions(t *testing.T) {
	bus, m, _ := newRecorder(t)

	bus.Emit(event.NewExecutionCompleteEvent("e1", "/sc:implement auth", 0, "Created: auth.go", "",
		3*time.Second, []string{"auth.go", "auth_test.go"}, []string{"main.go"}))
	bus.Emit(event.NewExecutionCompleteEvent("e2", "/sc:test auth", 1, "", "boom", time.Second, nil, nil))
	bus.Emit(event.NewExecutionFailedEvent("e2", "/sc:test auth", "command exited with status 1", "exit", nil))
	bus.Emit(event.NewExecutionFailedEvent("e3", "/sc:build", "timed out", "timeout", nil))
	testutil.WaitBus(t, bus)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Executions.WithLabelValues("implement", "true")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Executions.WithLabelValues("test", "false")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.FilesTouched.WithLabelValues("created")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.FilesTouched.WithLabelValues("modified")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ExecutionFailures.WithLabelValues("exit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ExecutionFailures.WithLabelValues("timeout")))
}

func TestRecorder_ObjectivesAndLearning(t *testing.T) {
	bus, m, _ := newRecorder(t)

	obj := orchestration.NewObjective("Add user authentication")
	obj.UpdateStatus(orchestration.ObjectiveCompleted)

	bus.Emit(event.NewPatternAppliedEvent(obj.ID, "p1", "auth workflow", 0.9, nil))
	bus.Emit(event.NewObjectiveCompletedEvent(obj, 3, time.Minute, map[string]float64{"success_rate": 1}, nil, nil))
	bus.Emit(event.NewPatternDetectedEvent("s1", "auth workflow", "command_sequence", []string{"auth"}, []string{"/sc:implement auth"}, 1, 1))
	bus.Emit(event.NewMetricsCalculatedEvent("s1", 0.75, 3, 2*time.Second, 0.5, 0.25, nil))
	testutil.WaitBus(t, bus)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Objectives.WithLabelValues("completed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PatternsApplied))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PatternsDetected))
	assert.Equal(t, 0.75, promtest.ToFloat64(m.SuccessRate))
	assert.Equal(t, 0.5, promtest.ToFloat64(m.PatternReuseRate))
	assert.Equal(t, 0.25, promtest.ToFloat64(m.InterventionRate))
}

func TestRecorder_Stop(t *testing.T) {
	bus, m, r := newRecorder(t)
	before := bus.SubscriptionCount()
	r.Stop()
	assert.Less(t, bus.SubscriptionCount(), before)

	bus.Emit(event.NewCommandProposedEvent("c1", "/sc:build", "", 0.9, nil, ""))
	testutil.WaitBus(t, bus)
	assert.Equal(t, 0.0, promtest.ToFloat64(m.Proposals))
}

func TestBusCollector(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	bus.Subscribe(event.TypeCommandProposed, func(context.Context, event.Event) error { return nil })

	c := NewBusCollector(bus)
	assert.Equal(t, 6, promtest.CollectAndCount(c))

	bus.Emit(event.NewCommandProposedEvent("c1", "/sc:build", "", 0.9, nil, ""))
	bus.Emit(event.NewCommandProposedEvent("c2", "/sc:test", "", 0.9, nil, ""))
	testutil.WaitBus(t, bus)

	expected := `
# HELP imthedev_bus_handlers Registered subscriptions
# TYPE imthedev_bus_handlers gauge
imthedev_bus_handlers 1
`
	require.NoError(t, promtest.CollectAndCompare(c, strings.NewReader(expected), "imthedev_bus_handlers"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "imthedev_bus_events_processed_total" {
			assert.GreaterOrEqual(t, mf.GetMetric()[0].GetCounter().GetValue(), 2.0)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	reg, m := NewRegistry(bus)
	require.NotNil(t, m)
	m.Proposals.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["imthedev_command_proposals_total"])
	assert.True(t, names["imthedev_bus_handlers"])
	assert.True(t, names["go_goroutines"])
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	reg, m := NewRegistry(bus)
	m.Recoveries.Inc()

	s := NewServer("127.0.0.1:0", reg, nil)
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start")

	base := "http://" + s.Addr()
	code, body := get(t, base+MetricsPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "imthedev_recoveries_total 1")

	code, body = get(t, base+HealthPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	require.NoError(t, s.Shutdown(context.Background()))
	_, err := http.Get(base + HealthPath)
	assert.Error(t, err)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", prometheus.NewRegistry(), nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_ListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", prometheus.NewRegistry(), nil)
	assert.Error(t, s.Start())
}
