package metrics

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Recorder counts HTTP requests, update results and event deliveries. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	requestTotal *prometheus.CounterVec
	updateTotal  *prometheus.CounterVec
	eventTotal   *prometheus.CounterVec
}

// New builds a Recorder and registers its collectors with reg. Collectors
// already present in reg are reused; any other registration conflict is
// returned.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usersvc",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		updateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usersvc",
			Name:      "user_updates_total",
			Help:      "Number of user update outcomes",
		}, []string{"outcome"}),
		eventTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "usersvc",
			Name:      "events_total",
			Help:      "Number of change events by delivery outcome",
		}, []string{"outcome"}),
	}

	for _, c := range []**prometheus.CounterVec{&r.requestTotal, &r.updateTotal, &r.eventTotal} {
		registered, err := register(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = registered
	}
	return r, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("register metrics: %w", err)
}

func (r *Recorder) Request(method, route string, status int) {
	if r == nil {
		return
	}
	r.requestTotal.With(prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}).Inc()
}

func (r *Recorder) Update(outcome string) {
	if r == nil {
		return
	}
	r.updateTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (r *Recorder) Event(outcome string) {
	if r == nil {
		return
	}
	r.eventTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
}
