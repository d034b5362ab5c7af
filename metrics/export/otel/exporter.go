package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is the read side of an engine. *goGate.Engine implements it.
type MetricsSource interface {
	MetricsSnapshot() goGate.MetricsSnapshot
	AuditDropped() uint64
}

// Instrument names. Each flow gets one counter; the engine counter it came
// from is carried in the "outcome" attribute.
const (
	OutcomeKey = "outcome"
	BoundKey   = "le"

	PasswordResetEvents = "gogate.password_reset.events"
	TokenEvents         = "gogate.token.events"
	LoginEvents         = "gogate.login.events"
	RefreshEvents       = "gogate.refresh.events"
	AuthorizeDecisions  = "gogate.authorize.decisions"
	StoreErrors         = "gogate.store.errors"
	AuditDropped        = "gogate.audit.dropped"
	AuthorizeLatency    = "gogate.authorize.latency"
	AuthorizeLatencyN   = "gogate.authorize.latency.count"
)

type outcome struct {
	id         goGate.MetricID
	instrument string
	label      string
}

var outcomes = []outcome{
	{goGate.MetricResetInitiated, PasswordResetEvents, "initiated"},
	{goGate.MetricResetOTPValid, PasswordResetEvents, "otp_valid"},
	{goGate.MetricResetOTPInvalid, PasswordResetEvents, "otp_invalid"},
	{goGate.MetricResetNotFound, PasswordResetEvents, "not_found"},
	{goGate.MetricResetTokenValid, PasswordResetEvents, "token_valid"},
	{goGate.MetricResetTokenInvalid, PasswordResetEvents, "token_invalid"},
	{goGate.MetricResetCompleted, PasswordResetEvents, "completed"},
	{goGate.MetricResetOTPAttemptsExceeded, PasswordResetEvents, "attempts_exceeded"},
	{goGate.MetricTokenIssued, TokenEvents, "issued"},
	{goGate.MetricTokenVerifyFailed, TokenEvents, "verify_failed"},
	{goGate.MetricLoginSuccess, LoginEvents, "success"},
	{goGate.MetricLoginFailure, LoginEvents, "failure"},
	{goGate.MetricRefreshSuccess, RefreshEvents, "success"},
	{goGate.MetricRefreshFailure, RefreshEvents, "failure"},
	{goGate.MetricAuthorizePermit, AuthorizeDecisions, "permit"},
	{goGate.MetricAuthorizeDeny, AuthorizeDecisions, "deny"},
	{goGate.MetricAuthorizeAnonymous, AuthorizeDecisions, "anonymous"},
	{goGate.MetricStoreError, StoreErrors, "error"},
}

var flowHelp = map[string]string{
	PasswordResetEvents: "Password reset state machine outcomes.",
	TokenEvents:         "Token issuance and verification outcomes.",
	LoginEvents:         "Login outcomes.",
	RefreshEvents:       "Token refresh outcomes.",
	AuthorizeDecisions:  "Authorization decisions.",
	StoreErrors:         "Ephemeral store failures.",
}

type observedOutcome struct {
	id         goGate.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.ObserveOption
}

// Exporter publishes engine counters as OpenTelemetry observable instruments.
type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	outcomes     []observedOutcome
	latency      metric.Int64ObservableGauge
	latencyN     metric.Int64ObservableGauge
	bounds       [8]metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter that read from engine.
func NewExporter(meter metric.Meter, engine *goGate.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments on meter that read from source.
// One callback serves every instrument, so a collection takes one snapshot.
func NewExporterFromSource(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:   source,
		outcomes: make([]observedOutcome, 0, len(outcomes)),
	}
	var observables []metric.Observable

	flows := make(map[string]metric.Int64ObservableCounter, len(flowHelp))
	for _, o := range outcomes {
		ins, ok := flows[o.instrument]
		if !ok {
			var err error
			ins, err = meter.Int64ObservableCounter(o.instrument, metric.WithDescription(flowHelp[o.instrument]))
			if err != nil {
				return nil, fmt.Errorf("create counter %s: %w", o.instrument, err)
			}
			flows[o.instrument] = ins
			observables = append(observables, ins)
		}
		exporter.outcomes = append(exporter.outcomes, observedOutcome{
			id:         o.id,
			instrument: ins,
			attrs:      metric.WithAttributes(attribute.String(OutcomeKey, o.label)),
		})
	}

	latency, err := meter.Int64ObservableGauge(AuthorizeLatency,
		metric.WithDescription("Cumulative authorization latency bucket counts."),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, fmt.Errorf("create latency gauge: %w", err)
	}
	latencyN, err := meter.Int64ObservableGauge(AuthorizeLatencyN,
		metric.WithDescription("Timed authorization decisions."))
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	exporter.latency, exporter.latencyN = latency, latencyN
	for i := range exporter.bounds {
		bound := "+Inf"
		if i < len(internaldefs.HistogramBounds) {
			bound = strconv.FormatFloat(internaldefs.HistogramBounds[i], 'f', -1, 64)
		}
		exporter.bounds[i] = metric.WithAttributes(attribute.String(BoundKey, bound))
	}

	auditDropped, err := meter.Int64ObservableCounter(AuditDropped,
		metric.WithDescription("Audit events dropped due to dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, latency, latencyN, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, o := range e.outcomes {
		observer.ObserveInt64(o.instrument, int64(snapshot.Counters[o.id]), o.attrs)
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[goGate.MetricAuthorizeLatency]))
	for i, n := range cumulative {
		observer.ObserveInt64(e.latency, int64(n), e.bounds[i])
	}
	observer.ObserveInt64(e.latencyN, int64(cumulative[len(cumulative)-1]))

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
