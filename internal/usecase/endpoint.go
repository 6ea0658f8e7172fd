package usecase

import (
	"sync"
	"time"

	"hotmic/internal/domain"
)

const (
	DefaultEndpointThreshold = 5
	DefaultEndpointSilence   = 2 * time.Second
)

// afterFunc schedules f to run once after d and returns a function that
// cancels it. The returned stop reports false if f already ran or was stopped.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type endpointTimer struct {
	stop func() bool
}

// EndpointDetector ends an utterance after a sustained run of silent levels.
// Levels in (0, Threshold] are silence; zero (not capturing) and anything
// above Threshold cancel the pending timer.
type EndpointDetector struct {
	after      afterFunc
	onEndpoint func()

	mu      sync.Mutex
	next    domain.EndpointParams
	current domain.EndpointParams
	period  uint64
	armed   bool
	fired   bool
	timer   *endpointTimer
}

// NewEndpointDetector returns a detector that calls onEndpoint at most once per
// Begin/End period.
func NewEndpointDetector(params domain.EndpointParams, onEndpoint func()) *EndpointDetector {
	return newEndpointDetector(params, onEndpoint, realAfterFunc)
}

func newEndpointDetector(params domain.EndpointParams, onEndpoint func(), after afterFunc) *EndpointDetector {
	if after == nil {
		after = realAfterFunc
	}
	return &EndpointDetector{
		after:      after,
		onEndpoint: onEndpoint,
		next:       normalizeEndpointParams(params),
	}
}

func normalizeEndpointParams(params domain.EndpointParams) domain.EndpointParams {
	if params.Threshold < 0 {
		params.Threshold = DefaultEndpointThreshold
	}
	if params.Silence <= 0 {
		params.Silence = DefaultEndpointSilence
	}
	return params
}

// SetParams changes the threshold and silence duration used from the next Begin.
func (d *EndpointDetector) SetParams(params domain.EndpointParams) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next = normalizeEndpointParams(params)
}

// Params returns the parameters the next period will use.
func (d *EndpointDetector) Params() domain.EndpointParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}

// Begin starts a fresh detection period and returns its token. Any earlier
// period is ended.
func (d *EndpointDetector) Begin() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.period++
	d.current = d.next
	d.armed = true
	d.fired = false
	return d.period
}

// End cancels any pending timer and ignores levels until the next Begin.
// A token from an earlier period is ignored.
func (d *EndpointDetector) End(period uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if period != d.period {
		return
	}
	d.cancelLocked()
	d.armed = false
}

// Observe feeds one level sample to the current period. Samples must arrive in
// capture order.
func (d *EndpointDetector) Observe(level int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observeLocked(level)
}

// ObservePeriod feeds a sample only if period is still the current one.
func (d *EndpointDetector) ObservePeriod(period uint64, level int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if period != d.period {
		return
	}
	d.observeLocked(level)
}

func (d *EndpointDetector) observeLocked(level int) {
	if !d.armed {
		return
	}

	if level == 0 || level > d.current.Threshold {
		d.cancelLocked()
		return
	}

	// Repeated quiet samples leave the running clock alone.
	if d.timer != nil || d.fired {
		return
	}
	t := &endpointTimer{}
	t.stop = d.after(d.current.Silence, func() { d.fire(t) })
	d.timer = t
}

// Pending reports whether a silence timer is running.
func (d *EndpointDetector) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *EndpointDetector) cancelLocked() {
	if d.timer == nil {
		return
	}
	d.timer.stop()
	d.timer = nil
}

func (d *EndpointDetector) fire(t *endpointTimer) {
	d.mu.Lock()
	if d.timer != t || !d.armed || d.fired {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.fired = true
	d.mu.Unlock()

	if d.onEndpoint != nil {
		d.onEndpoint()
	}
}
