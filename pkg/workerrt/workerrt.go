// Package workerrt is the generic worker framework shared by the
// Picker, Locator, and Rucio Stager: component identity, the
// configuration contract, the heartbeat and work cooperative loops,
// and the claim/quarantine primitives. It plays the role the teacher's
// pkg/worker.Worker plays for containers — heartbeatLoop and
// containerExecutorLoop ticking independently against a stopCh — but
// drives component-specific claim handlers instead of containerd.
package workerrt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blinkdog/lta/pkg/config"
	"github.com/blinkdog/lta/pkg/ltaclient"
	"github.com/blinkdog/lta/pkg/ltaerrors"
	"github.com/blinkdog/lta/pkg/ltalog"
	"github.com/blinkdog/lta/pkg/metrics"
)

// Component is implemented by each specialization (Picker, Locator,
// Rucio Stager). ExpectedConfig declares the component's extra
// recognized options beyond config.CommonSpec. DoWorkClaim attempts to
// claim and fully process one entity, returning true when the runtime's
// drain loop should immediately try again. Each implementation
// documents when it returns false after claiming an entity (the Picker
// and Locator after a processing failure, the Rucio Stager always).
type Component interface {
	ExpectedConfig() config.Spec
	DoWorkClaim(ctx context.Context, rt *Runtime) (bool, error)
}

// Runtime holds one worker instance's identity, resolved configuration,
// and the two cooperative loops (heartbeat, work) described in
// spec.md section 4.1.
type Runtime struct {
	name          string // role tag, e.g. "picker"
	componentName string // operator label (COMPONENT_NAME)
	instanceUUID  string
	claimant      string

	Config map[string]string
	Logger zerolog.Logger
	LTA    *ltaclient.Client

	heartbeatSleep time.Duration
	workSleep      time.Duration
	runOnceAndDie  bool

	lastWorkBegin string
	lastWorkEnd   string

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Runtime. name is the stable role tag; spec is the
// component's full recognized-options set (config.CommonSpec merged
// with the component's ExpectedConfig). A missing required option
// surfaces as a ConfigError, matching the Python EXPECTED_CONFIG
// contract documented in spec.md section 4.1.
func New(name string, spec config.Spec, lta *ltaclient.Client, logger zerolog.Logger) (*Runtime, error) {
	resolved, err := config.FromEnvironment(spec)
	if err != nil {
		return nil, err
	}

	for _, k := range config.SortedKeys(resolved) {
		logger.Info().Str("key", k).Str("value", resolved[k]).Msg("resolved configuration")
	}

	instanceUUID := uuid.New().String()
	componentName := resolved["COMPONENT_NAME"]
	claimant := fmt.Sprintf("%s-%s", name, instanceUUID)

	heartbeatSleep, err := parseSeconds(resolved, "HEARTBEAT_SLEEP_DURATION_SECONDS")
	if err != nil {
		return nil, err
	}
	workSleep, err := parseSeconds(resolved, "WORK_SLEEP_DURATION_SECONDS")
	if err != nil {
		return nil, err
	}

	return &Runtime{
		name:           name,
		componentName:  componentName,
		instanceUUID:   instanceUUID,
		claimant:       claimant,
		Config:         resolved,
		Logger:         ltalog.WithClaimant(logger, claimant),
		LTA:            lta,
		heartbeatSleep: heartbeatSleep,
		workSleep:      workSleep,
		runOnceAndDie:  strings.EqualFold(resolved["RUN_ONCE_AND_DIE"], "TRUE"),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Claimant returns this instance's "<name>-<instance_uuid>" identifier.
func (rt *Runtime) Claimant() string { return rt.claimant }

// Name returns the role tag this Runtime was constructed with.
func (rt *Runtime) Name() string { return rt.name }

// Run starts the heartbeat and work loops and blocks until both have
// exited, either because Stop was called or (when RUN_ONCE_AND_DIE is
// set) the work loop finished draining.
func (rt *Runtime) Run(ctx context.Context, c Component) {
	heartbeatDone := make(chan struct{})
	workDone := make(chan struct{})

	go func() {
		defer close(heartbeatDone)
		rt.heartbeatLoop(ctx)
	}()
	go func() {
		defer close(workDone)
		rt.workLoop(ctx, c)
	}()

	<-workDone
	if rt.runOnceAndDie {
		close(rt.stopCh)
	}
	<-heartbeatDone
	close(rt.doneCh)
}

// Stop signals both loops to exit at their next suspension point.
func (rt *Runtime) Stop() {
	select {
	case <-rt.stopCh:
	default:
		close(rt.stopCh)
	}
}

// Done reports when Run has fully returned.
func (rt *Runtime) Done() <-chan struct{} { return rt.doneCh }

func (rt *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.heartbeatSleep)
	defer ticker.Stop()
	for {
		select {
		case <-rt.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.sendHeartbeat(ctx); err != nil {
				metrics.HeartbeatFailuresTotal.WithLabelValues(rt.name).Inc()
				metrics.UpdateComponent("heartbeat", false, err.Error())
				rt.Logger.Error().Err(err).Msg("heartbeat publish failed")
			} else {
				metrics.HeartbeatsTotal.WithLabelValues(rt.name).Inc()
				metrics.UpdateComponent("heartbeat", true, "")
			}
		}
	}
}

func (rt *Runtime) sendHeartbeat(ctx context.Context) error {
	doc := ltaclient.StatusDocument{
		Name:                   rt.name,
		InstanceUUID:           rt.instanceUUID,
		ComponentName:          rt.componentName,
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
		LastWorkBeginTimestamp: rt.lastWorkBegin,
		LastWorkEndTimestamp:   rt.lastWorkEnd,
	}
	return rt.LTA.PostStatus(ctx, rt.name, doc)
}

// workLoop calls the component's do_work hook on every cycle, as
// documented in spec.md section 4.1: drain via DoWorkClaim until idle
// or run_once_and_die, then sleep, regardless of whether the cycle
// raised.
func (rt *Runtime) workLoop(ctx context.Context, c Component) {
	for {
		select {
		case <-rt.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		rt.doWork(ctx, c)

		if rt.runOnceAndDie {
			return
		}

		select {
		case <-rt.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(rt.workSleep):
		}
	}
}

func (rt *Runtime) doWork(ctx context.Context, c Component) {
	rt.lastWorkBegin = time.Now().UTC().Format(time.RFC3339)
	defer func() { rt.lastWorkEnd = time.Now().UTC().Format(time.RFC3339) }()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.WorkCycleDuration, rt.name)
	metrics.WorkCyclesTotal.WithLabelValues(rt.name).Inc()

	// Drain claims until idle, run_once_and_die, or a fault. A fault
	// (non-nil error) stops the drain immediately rather than being
	// folded into the claimed boolean: components that handle their own
	// failures (quarantine, then return false) return a nil error, while a
	// component that wants the failure logged as a fault returns the
	// error alongside its claimed result, matching the
	// Picker-silent / Locator-loud asymmetry documented on each
	// Component's DoWorkClaim.
	claimed := true
	var cycleErr error
	for claimed {
		claimed, cycleErr = c.DoWorkClaim(ctx, rt)
		if cycleErr != nil {
			rt.Logger.Error().Err(cycleErr).Msg("work cycle failed")
			break
		}
		claimed = claimed && !rt.runOnceAndDie
	}

	if cycleErr != nil {
		metrics.UpdateComponent("work", false, cycleErr.Error())
	} else {
		metrics.UpdateComponent("work", true, "")
	}
}

// Quarantine issues the PATCH that moves entityKind/entityUUID to
// status=quarantined, formatting reason per spec.md section 4.1.
// Failure is logged and swallowed; it never propagates, matching
// testable property 6.
func (rt *Runtime) Quarantine(ctx context.Context, entityKind, entityUUID, reason string) {
	var err error
	switch entityKind {
	case "TransferRequest":
		err = rt.LTA.QuarantineTransferRequest(ctx, entityUUID, rt.claimant, reason)
	case "Bundle":
		err = rt.LTA.QuarantineBundle(ctx, entityUUID, rt.claimant, reason)
	default:
		err = ltaerrors.NewDataError("unknown entity kind %q", entityKind)
	}

	if err != nil {
		metrics.QuarantineFailuresTotal.WithLabelValues(rt.name, entityKind).Inc()
		rt.Logger.Error().Err(err).Str("entity_kind", entityKind).Str("entity_uuid", entityUUID).
			Msg("quarantine failed; entity remains claimed and will age out via external reaper")
		return
	}
	metrics.QuarantinesTotal.WithLabelValues(rt.name, entityKind).Inc()
}

func parseSeconds(resolved map[string]string, key string) (time.Duration, error) {
	n, err := strconv.Atoi(resolved[key])
	if err != nil {
		return 0, ltaerrors.NewConfigError(key, "not an integer: "+err.Error())
	}
	return time.Duration(n) * time.Second, nil
}
