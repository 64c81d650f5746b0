package detector

import (
	"context"
	"fmt"
	"time"

	"loadsentry/pkg/config"
	"loadsentry/pkg/constants"
	"loadsentry/pkg/logger"
	"loadsentry/pkg/monitoring"
	"loadsentry/pkg/notification"
	"loadsentry/pkg/store/state"
)

// Engine is the adaptive bottleneck detection engine. One Detect call is one
// sampling tick: it loads the persisted counters, evaluates every dimension,
// correlates against node health and publishes the verdict. The engine keeps
// no in-memory state between ticks, so it can run process-per-tick or inside
// a long-lived loop interchangeably.
type Engine struct {
	cfg        *config.Config
	store      *state.Store
	adapter    *Adapter
	comparator *BaselineComparator
	ena        *ENATracker
	probe      *RPCProbe
	correlator *Correlator
	health     HealthSource
	publisher  *Publisher
	webhook    *notification.WebhookNotifier
	metrics    *monitoring.Metrics
}

// NewEngine wires the engine. webhook and metrics may be nil.
func NewEngine(cfg *config.Config, store *state.Store, health HealthSource, publisher *Publisher, webhook *notification.WebhookNotifier, metrics *monitoring.Metrics) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		adapter:    NewAdapter(cfg.Devices),
		comparator: NewBaselineComparator(cfg.Devices, cfg.Thresholds),
		ena:        NewENATracker(store),
		probe:      NewRPCProbe(cfg.RPC),
		correlator: NewCorrelator(),
		health:     health,
		publisher:  publisher,
		webhook:    webhook,
		metrics:    metrics,
	}
}

// Detect runs one sampling tick. It always returns a verdict: internal
// failures degrade to "no bottleneck" because a false negative is preferable
// to aborting the load test.
func (e *Engine) Detect(ctx context.Context, req DetectRequest) (verdict *Verdict) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "detection tick panicked, returning monitoring verdict: %v", r)
			verdict = &Verdict{
				Status:      StatusMonitoring,
				CurrentLoad: req.CurrentLoad,
				Baselines:   e.comparator.Baselines(),
				Counters:    map[string]int{},
			}
		}
	}()

	bank := LoadCounterBank(e.store, e.cfg.Thresholds.ConsecutiveCount)
	snap := e.adapter.Snapshot(req.MetricFile)

	var resource, rpc Triggered

	run := func(check Check, scope *Triggered) {
		triggered := bank.Evaluate(check.Dimension, check.Value, check.Threshold, check.Compare)
		if !triggered {
			return
		}
		scope.add(check.Dimension, check.Display)
		e.warnOnFirstTrigger(ctx, bank, check.Dimension, check.Display, req.CurrentLoad)
	}

	for _, check := range e.hostChecks(snap) {
		run(check, &resource)
	}
	for _, check := range e.comparator.Checks(snap) {
		run(check, &resource)
	}
	run(Check{
		Dimension: constants.DimErrorRate,
		Value:     snap.RPCErrorRatePct,
		Threshold: e.cfg.Thresholds.ErrorRatePct,
		Compare:   CompareAbove,
		Display:   fmt.Sprintf("%.1f%%", snap.RPCErrorRatePct),
	}, &rpc)

	e.evaluateENA(ctx, bank, req.MetricFile, req.CurrentLoad, &resource)
	e.evaluateRPC(ctx, bank, req, &rpc)

	nodeUnhealthy := e.health.Unhealthy(ctx)
	cls := e.correlator.Classify(resource, rpc, nodeUnhealthy)

	if cls.Outcome == OutcomeSuppressed {
		logger.InfoCtx(ctx, "resource-only breach on healthy node, suppressing as false positive (dims=%v)", resource.Names)
		bank.ResetResource()
	}

	if err := bank.Save(e.store); err != nil {
		logger.ErrorCtx(ctx, "failed to persist counters: %v", err)
	}

	verdict = e.buildVerdict(cls, snap, bank, req.CurrentLoad)
	if err := e.publisher.Publish(ctx, verdict); err != nil {
		logger.ErrorCtx(ctx, "failed to publish verdict: %v", err)
	}

	if verdict.Detected {
		logger.InfoCtx(ctx, "bottleneck confirmed at load %d: %s", req.CurrentLoad, cls.Reason)
	}
	return verdict
}

// Status returns the last published verdict.
func (e *Engine) Status() *Verdict {
	return e.publisher.Last()
}

// IsDetected reports whether the last published verdict confirmed a
// bottleneck.
func (e *Engine) IsDetected() bool {
	return e.publisher.Last().Detected
}

func (e *Engine) hostChecks(snap *MetricSnapshot) []Check {
	t := e.cfg.Thresholds
	return []Check{
		{
			Dimension: constants.DimCPU,
			Value:     snap.CPUPct,
			Threshold: t.CPUPct,
			Compare:   CompareAbove,
			Display:   fmt.Sprintf("%.1f%%", snap.CPUPct),
		},
		{
			Dimension: constants.DimMemory,
			Value:     snap.MemPct,
			Threshold: t.MemPct,
			Compare:   CompareAbove,
			Display:   fmt.Sprintf("%.1f%%", snap.MemPct),
		},
		{
			Dimension: constants.DimNetwork,
			Value:     snap.NetworkUtilPct,
			Threshold: t.NetworkUtilPct,
			Compare:   CompareAbove,
			Display:   fmt.Sprintf("%.1f%%", snap.NetworkUtilPct),
		},
	}
}

func (e *Engine) evaluateENA(ctx context.Context, bank *CounterBank, metricFile string, currentLoad int, resource *Triggered) {
	breached, detail := e.ena.Evaluate(metricFile)
	if bank.EvaluateBool(constants.DimENALimit, breached) {
		resource.add(constants.DimENALimit, detail)
		e.warnOnFirstTrigger(ctx, bank, constants.DimENALimit, detail, currentLoad)
	}
}

func (e *Engine) evaluateRPC(ctx context.Context, bank *CounterBank, req DetectRequest, rpc *Triggered) {
	probeErr := e.probe.Check(ctx)
	if probeErr != nil {
		logger.DebugCtx(ctx, "rpc probe failed: %v", probeErr)
		if e.metrics != nil {
			e.metrics.ProbeFailures.Inc()
		}
	}
	if bank.EvaluateBool(constants.DimRPCConnection, probeErr != nil) {
		rpc.add(constants.DimRPCConnection, "endpoint unreachable")
		e.warnOnFirstTrigger(ctx, bank, constants.DimRPCConnection, "endpoint unreachable", req.CurrentLoad)
	}

	result, ok := ReadLoadResult(req.ResultFile)
	if !ok {
		// no artifact yet: skip the passive check without touching counters
		return
	}

	t := e.cfg.Thresholds
	checks := []Check{
		{
			Dimension: constants.DimRPCSuccessRate,
			Value:     result.SuccessRatePct(),
			Threshold: t.RPCSuccessRatePct,
			Compare:   CompareBelow,
			Display:   fmt.Sprintf("%.2f%%", result.SuccessRatePct()),
		},
		{
			Dimension: constants.DimRPCLatency,
			Value:     result.MeanLatencyMs(),
			Threshold: t.RPCLatencyMs,
			Compare:   CompareAbove,
			Display:   fmt.Sprintf("%.1fms", result.MeanLatencyMs()),
		},
	}
	for _, check := range checks {
		if bank.Evaluate(check.Dimension, check.Value, check.Threshold, check.Compare) {
			rpc.add(check.Dimension, check.Display)
			e.warnOnFirstTrigger(ctx, bank, check.Dimension, check.Display, req.CurrentLoad)
		}
	}
}

// warnOnFirstTrigger echoes a one-line warning the moment a dimension's
// hysteresis threshold is first reached, and forwards it to the operator
// webhook when configured.
func (e *Engine) warnOnFirstTrigger(ctx context.Context, bank *CounterBank, dim constants.Dimension, value string, currentLoad int) {
	if !bank.JustTriggered(dim) {
		return
	}
	logger.WarnCtx(ctx, "dimension %s triggered at load %d (value %s)", dim, currentLoad, value)
	if e.webhook != nil {
		if err := e.webhook.SendDimensionWarning(ctx, dim.String(), value, currentLoad); err != nil {
			logger.DebugCtx(ctx, "operator webhook failed: %v", err)
		}
	}
}

func (e *Engine) buildVerdict(cls Classification, snap *MetricSnapshot, bank *CounterBank, currentLoad int) *Verdict {
	v := &Verdict{
		Status:      StatusMonitoring,
		Detected:    cls.Outcome.Detected(),
		Dimensions:  cls.Dimensions,
		Values:      cls.Values,
		CurrentLoad: currentLoad,
		Snapshot:    *snap,
		Baselines:   e.comparator.Baselines(),
		Counters:    bank.Counts(),
	}
	if v.Dimensions == nil {
		v.Dimensions = []string{}
	}
	if v.Values == nil {
		v.Values = []string{}
	}

	if v.Detected {
		v.Status = StatusDetected
		now := time.Now().UTC()
		// keep the original detection time while the condition persists
		if prev := e.publisher.Last(); prev.Detected && prev.DetectionTime != nil {
			v.DetectionTime = prev.DetectionTime
		} else {
			v.DetectionTime = &now
		}
	}
	return v
}
