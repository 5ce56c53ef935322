package pool

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ResourceDetail is one entry of Stats' per-resource detail lists,
// rendered via the Tracer/Stats hooks or, failing those, a default
// fmt.Sprintf identity rendering.
type ResourceDetail struct {
	Label string `json:"label"`
	Uses  uint64 `json:"uses"`
	Data  any    `json:"data,omitempty"`
}

// Stats is a point-in-time snapshot of a Pool's configuration,
// instantaneous membership and monotonic counters.
type Stats struct {
	// Configuration, echoed for convenience.
	MaxSize int64 `json:"max_size"`
	MinSize int64 `json:"min_size"`
	MaxUse  uint64 `json:"max_use"`

	// Instantaneous membership counts.
	NAvail int `json:"n_avail"`
	NUsing int `json:"n_using"`
	NTodel int `json:"n_todel"`
	NObjs  int `json:"n_objs"`

	// SemaphoreValue is the number of permits currently available;
	// SemaphoreInitial is the configured capacity.
	SemaphoreValue   int64 `json:"semaphore_value"`
	SemaphoreInitial int64 `json:"semaphore_initial"`

	// Monotonic counters, accumulated over the pool's lifetime.
	NCreating uint64 `json:"n_creating"`
	NCreated  uint64 `json:"n_created"`
	NUses     uint64 `json:"n_uses"`
	NHealth   uint64 `json:"n_health"`
	BadHealth uint64 `json:"bad_health"`
	NBorrows  uint64 `json:"n_borrows"`
	NReturns  uint64 `json:"n_returns"`
	NKilled   uint64 `json:"n_killed"`
	NRecycled uint64 `json:"n_recycled"`
	NWornOut  uint64 `json:"n_worn_out"`
	NDestroys uint64 `json:"n_destroys"`
	HkRounds  uint64 `json:"hk_rounds"`
	HkErrors  uint64 `json:"hk_errors"`
	HcRounds  uint64 `json:"hc_rounds"`
	HcErrors  uint64 `json:"hc_errors"`

	// Running reports whether the housekeeper goroutine is active.
	Running bool `json:"running"`
	// TimePerHk is the mean duration of a housekeeping round.
	TimePerHk time.Duration `json:"time_per_hk"`
	// RelHkLast is how long ago the last housekeeping round finished.
	RelHkLast time.Duration `json:"rel_hk_last"`

	// Avail and Using list the resources in each set, rendered through
	// Tracer/Stats hooks when configured. Omitted (nil) when neither
	// hook is set, to avoid the cost of building them on every snapshot.
	Avail []ResourceDetail `json:"avail,omitempty"`
	Using []ResourceDetail `json:"using,omitempty"`
}

// describe renders a resource for logging: the tracer hook if
// configured, else a default fmt.Sprintf("%v") rendering. Hook errors
// fall back to the default rendering.
func (p *Pool[R]) describe(r R) string {
	if p.cfg.Tracer != nil {
		if s, err := p.cfg.Tracer(r); err == nil {
			return s
		}
	}
	return fmt.Sprintf("%v", r)
}

func (p *Pool[R]) detail(r R, ui *UseInfo) ResourceDetail {
	d := ResourceDetail{Label: p.describe(r)}
	if ui != nil {
		d.Uses = ui.Uses
	}
	if p.cfg.Stats != nil {
		if v, err := p.cfg.Stats(r); err == nil {
			d.Data = v
		}
	}
	return d
}

// Snapshot returns a point-in-time Stats for the pool. Building the
// Avail/Using detail lists runs the Tracer/Stats hooks outside the
// lock, over a snapshot of resource identities taken under it.
func (p *Pool[R]) Snapshot() Stats {
	p.mu.Lock()
	s := Stats{
		MaxSize:          p.cfg.MaxSize,
		MinSize:          p.cfg.MinSize,
		MaxUse:           p.cfg.MaxUse,
		NAvail:           len(p.avail),
		NUsing:           len(p.using),
		NTodel:           len(p.todel),
		NObjs:            p.nobjs,
		SemaphoreValue:   p.gate.value(),
		SemaphoreInitial: p.gate.total,
		NCreating:        p.counters.ncreating,
		NCreated:         p.counters.ncreated,
		NUses:            p.counters.nuses,
		NHealth:          p.counters.nhealth,
		BadHealth:        p.counters.badHealth,
		NBorrows:         p.counters.nborrows,
		NReturns:         p.counters.nreturns,
		NKilled:          p.counters.nkilled,
		NRecycled:        p.counters.nrecycled,
		NWornOut:         p.counters.nwornout,
		NDestroys:        p.counters.ndestroys,
		HkRounds:         p.counters.hkRounds,
		HkErrors:         p.counters.hkErrors,
		HcRounds:         p.counters.hcRounds,
		HcErrors:         p.counters.hcErrors,
		Running:          p.hkStop != nil && !p.shutdown,
	}
	if s.HkRounds > 0 {
		s.TimePerHk = p.counters.hkTime / time.Duration(s.HkRounds)
	}
	if !p.counters.hkLast.IsZero() {
		s.RelHkLast = now().Sub(p.counters.hkLast)
	}

	var availR, usingR []R
	var availUI, usingUI []*UseInfo
	wantDetail := p.cfg.Tracer != nil || p.cfg.Stats != nil
	if wantDetail {
		for r := range p.avail {
			availR = append(availR, r)
			availUI = append(availUI, p.uses[r])
		}
		for r := range p.using {
			usingR = append(usingR, r)
			usingUI = append(usingUI, p.uses[r])
		}
	}
	p.mu.Unlock()

	if wantDetail {
		s.Avail = make([]ResourceDetail, len(availR))
		for i, r := range availR {
			s.Avail[i] = p.detail(r, availUI[i])
		}
		s.Using = make([]ResourceDetail, len(usingR))
		for i, r := range usingR {
			s.Using[i] = p.detail(r, usingUI[i])
		}
	}
	return s
}

// statsDesc is the set of Prometheus descriptors a Collector reports.
var statsDesc = struct {
	navail, nusing, ntodel, nobjs                     *prometheus.Desc
	semaphoreValue, semaphoreInitial                  *prometheus.Desc
	ncreated, nuses, nkilled, nrecycled, nwornout      *prometheus.Desc
	ndestroys, hkrounds, hkerrors, hcrounds, hcerrors  *prometheus.Desc
}{
	navail:            prometheus.NewDesc("pool_avail", "Resources currently available.", nil, nil),
	nusing:            prometheus.NewDesc("pool_using", "Resources currently lent out.", nil, nil),
	ntodel:            prometheus.NewDesc("pool_todel", "Resources pending destruction.", nil, nil),
	nobjs:             prometheus.NewDesc("pool_objs", "Resources currently registered.", nil, nil),
	semaphoreValue:    prometheus.NewDesc("pool_semaphore_value", "Capacity permits currently available.", nil, nil),
	semaphoreInitial:  prometheus.NewDesc("pool_semaphore_initial", "Configured capacity.", nil, nil),
	ncreated:          prometheus.NewDesc("pool_created_total", "Resources created.", nil, nil),
	nuses:             prometheus.NewDesc("pool_uses_total", "Resources lent via Get.", nil, nil),
	nkilled:           prometheus.NewDesc("pool_killed_total", "Resources killed for exceeding the long-use threshold.", nil, nil),
	nrecycled:         prometheus.NewDesc("pool_recycled_total", "Resources retired for exceeding the idle threshold.", nil, nil),
	nwornout:          prometheus.NewDesc("pool_worn_out_total", "Resources retired for exceeding max_use.", nil, nil),
	ndestroys:         prometheus.NewDesc("pool_destroyed_total", "Resources destroyed.", nil, nil),
	hkrounds:          prometheus.NewDesc("pool_housekeeping_rounds_total", "Housekeeping rounds run.", nil, nil),
	hkerrors:          prometheus.NewDesc("pool_housekeeping_errors_total", "Housekeeping rounds that panicked.", nil, nil),
	hcrounds:          prometheus.NewDesc("pool_healthcheck_rounds_total", "Health-check rounds run.", nil, nil),
	hcerrors:          prometheus.NewDesc("pool_healthcheck_errors_total", "Health hook errors observed.", nil, nil),
}

// collector adapts Pool.Snapshot to prometheus.Collector.
type collector[R comparable] struct {
	p *Pool[R]
}

// Collector returns a prometheus.Collector exposing this pool's Stats.
// Register it with a prometheus.Registry to expose pool metrics
// alongside the rest of a service's instrumentation.
func (p *Pool[R]) Collector() prometheus.Collector {
	return collector[R]{p: p}
}

func (collector[R]) Describe(ch chan<- *prometheus.Desc) {
	ch <- statsDesc.navail
	ch <- statsDesc.nusing
	ch <- statsDesc.ntodel
	ch <- statsDesc.nobjs
	ch <- statsDesc.semaphoreValue
	ch <- statsDesc.semaphoreInitial
	ch <- statsDesc.ncreated
	ch <- statsDesc.nuses
	ch <- statsDesc.nkilled
	ch <- statsDesc.nrecycled
	ch <- statsDesc.nwornout
	ch <- statsDesc.ndestroys
	ch <- statsDesc.hkrounds
	ch <- statsDesc.hkerrors
	ch <- statsDesc.hcrounds
	ch <- statsDesc.hcerrors
}

func (c collector[R]) Collect(ch chan<- prometheus.Metric) {
	s := c.p.Snapshot()
	ch <- prometheus.MustNewConstMetric(statsDesc.navail, prometheus.GaugeValue, float64(s.NAvail))
	ch <- prometheus.MustNewConstMetric(statsDesc.nusing, prometheus.GaugeValue, float64(s.NUsing))
	ch <- prometheus.MustNewConstMetric(statsDesc.ntodel, prometheus.GaugeValue, float64(s.NTodel))
	ch <- prometheus.MustNewConstMetric(statsDesc.nobjs, prometheus.GaugeValue, float64(s.NObjs))
	ch <- prometheus.MustNewConstMetric(statsDesc.semaphoreValue, prometheus.GaugeValue, float64(s.SemaphoreValue))
	ch <- prometheus.MustNewConstMetric(statsDesc.semaphoreInitial, prometheus.GaugeValue, float64(s.SemaphoreInitial))
	ch <- prometheus.MustNewConstMetric(statsDesc.ncreated, prometheus.CounterValue, float64(s.NCreated))
	ch <- prometheus.MustNewConstMetric(statsDesc.nuses, prometheus.CounterValue, float64(s.NUses))
	ch <- prometheus.MustNewConstMetric(statsDesc.nkilled, prometheus.CounterValue, float64(s.NKilled))
	ch <- prometheus.MustNewConstMetric(statsDesc.nrecycled, prometheus.CounterValue, float64(s.NRecycled))
	ch <- prometheus.MustNewConstMetric(statsDesc.nwornout, prometheus.CounterValue, float64(s.NWornOut))
	ch <- prometheus.MustNewConstMetric(statsDesc.ndestroys, prometheus.CounterValue, float64(s.NDestroys))
	ch <- prometheus.MustNewConstMetric(statsDesc.hkrounds, prometheus.CounterValue, float64(s.HkRounds))
	ch <- prometheus.MustNewConstMetric(statsDesc.hkerrors, prometheus.CounterValue, float64(s.HkErrors))
	ch <- prometheus.MustNewConstMetric(statsDesc.hcrounds, prometheus.CounterValue, float64(s.HcRounds))
	ch <- prometheus.MustNewConstMetric(statsDesc.hcerrors, prometheus.CounterValue, float64(s.HcErrors))
}
