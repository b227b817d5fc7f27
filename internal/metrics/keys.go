package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KeyMetrics — метрики пула ключей для Prometheus
type KeyMetrics struct {
	Operations     *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	LiveKeys       prometheus.Gauge
	BlockedKeys    prometheus.Gauge
	DeletedKeys    prometheus.Gauge
	RefreshSeconds prometheus.Histogram
}

// NewKeyMetrics создает метрики и регистрирует их в reg (DefaultRegisterer при nil).
// Повторная регистрация тех же метрик не считается ошибкой.
func NewKeyMetrics(reg prometheus.Registerer) (*KeyMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &KeyMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyserver_operations_total",
			Help: "Операции над пулом ключей по типу и результату",
		}, []string{"op", "result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyserver_transitions_total",
			Help: "Автоматические переходы ключей (unblock, expire)",
		}, []string{"transition"}),
		LiveKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyserver_live_keys",
			Help: "Количество живых ключей",
		}),
		BlockedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyserver_blocked_keys",
			Help: "Количество заблокированных ключей",
		}),
		DeletedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyserver_deleted_keys",
			Help: "Количество удалённых ключей",
		}),
		RefreshSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keyserver_refresh_duration_seconds",
			Help:    "Длительность прохода RefreshAll",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}

	var err error
	if m.Operations, err = register(reg, m.Operations); err != nil {
		return nil, err
	}
	if m.Transitions, err = register(reg, m.Transitions); err != nil {
		return nil, err
	}
	if m.LiveKeys, err = register(reg, m.LiveKeys); err != nil {
		return nil, err
	}
	if m.BlockedKeys, err = register(reg, m.BlockedKeys); err != nil {
		return nil, err
	}
	if m.DeletedKeys, err = register(reg, m.DeletedKeys); err != nil {
		return nil, err
	}
	if m.RefreshSeconds, err = register(reg, m.RefreshSeconds); err != nil {
		return nil, err
	}
	return m, nil
}

// register регистрирует коллектор; если такой уже зарегистрирован,
// возвращает существующий, чтобы значения попадали в одну и ту же метрику.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveOperation увеличивает счётчик операции
func (m *KeyMetrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

// ObserveTransitions учитывает результат прохода правила переходов
func (m *KeyMetrics) ObserveTransitions(unblocked, expired int) {
	if m == nil {
		return
	}
	if unblocked > 0 {
		m.Transitions.WithLabelValues("unblock").Add(float64(unblocked))
	}
	if expired > 0 {
		m.Transitions.WithLabelValues("expire").Add(float64(expired))
	}
}

// SetSizes обновляет gauge-метрики размеров пула
func (m *KeyMetrics) SetSizes(live, blocked, deleted int) {
	if m == nil {
		return
	}
	m.LiveKeys.Set(float64(live))
	m.BlockedKeys.Set(float64(blocked))
	m.DeletedKeys.Set(float64(deleted))
}

// ObserveRefresh записывает длительность прохода RefreshAll
func (m *KeyMetrics) ObserveRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.RefreshSeconds.Observe(d.Seconds())
}
