package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cart holds business metrics emitted by the cart service. A nil *Cart is
// valid and records nothing.
type Cart struct {
	mutations      *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	writeConflicts prometheus.Counter
	cartValue      prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
}

func NewCart(namespace string, reg prometheus.Registerer) *Cart {
	if namespace == "" {
		namespace = defaultNamespace
	}

	m := &Cart{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "mutations_total",
				Help:      "Committed cart mutations by operation",
			},
			[]string{"operation"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "rejections_total",
				Help:      "Cart mutations rejected by a business rule",
			},
			[]string{"operation", "reason"},
		),
		writeConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "write_conflicts_total",
				Help:      "Cart writes that lost a version race and were retried",
			},
		),
		cartValue: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "value",
				Help:      "Cart total after each committed mutation",
				Buckets:   []float64{0, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cart",
				Name:      "cache_lookups_total",
				Help:      "Cart cache lookups by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.mutations, m.rejections, m.writeConflicts, m.cartValue, m.cacheLookups)
	return m
}

func (m *Cart) Mutation(operation string, cartTotal float64) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation).Inc()
	m.cartValue.Observe(cartTotal)
}

func (m *Cart) Rejected(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

func (m *Cart) WriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

// CacheLookup records "hit", "miss" or "error".
func (m *Cart) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
