package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe возвращает текущее значение показателя
type Probe func() float64

// SystemMetrics периодически снимает показатели состояния сервиса:
// пулы соединений, размер очереди сессий, работу планировщика
type SystemMetrics interface {
	Record()
	StartRecording(interval time.Duration)
	Stop()
}

type systemMetrics struct {
	log    *logger.Logger
	state  *prometheus.GaugeVec
	names  []string
	probes map[string]Probe

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSystemMetrics регистрирует gauge parking_payments_system_state с меткой probe
func NewSystemMetrics(registry prometheus.Registerer, probes map[string]Probe, log *logger.Logger) SystemMetrics {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return &systemMetrics{
		log: log,
		state: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_state",
			Help:      "Sampled state of service components",
		}, []string{"probe"}),
		names:  names,
		probes: probes,
		stopCh: make(chan struct{}),
	}
}

// Record опрашивает все показатели
func (m *systemMetrics) Record() {
	for _, name := range m.names {
		m.state.WithLabelValues(name).Set(m.probes[name]())
	}
}

// StartRecording начинает запись метрик с заданным интервалом
func (m *systemMetrics) StartRecording(interval time.Duration) {
	m.Record()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Record()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Info("System metrics recording started with interval %s for %d probes", interval, len(m.names))
}

// Stop останавливает запись метрик
func (m *systemMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.log.Info("System metrics recording stopped")
	})
}

// BoolProbe переводит флаг в 0 или 1
func BoolProbe(fn func() bool) Probe {
	return func() float64 {
		if fn() {
			return 1
		}
		return 0
	}
}
