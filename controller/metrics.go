package controller

import (
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"

	"imu-fusion/models"
)

// Metrics exports the fusion stage's per-sample diagnostics as Prometheus
// collectors.
type Metrics struct {
	Samples      prometheus.Counter
	Rejected     prometheus.Counter
	Ignored      *prometheus.CounterVec
	Recoveries   *prometheus.CounterVec
	Initialising prometheus.Gauge
	Errors       *prometheus.GaugeVec
	Euler        *prometheus.GaugeVec
	GyroBias     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_samples_total",
			Help: "Samples processed by the fusion engine.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_rejected_inputs_total",
			Help: "Samples refused as invalid input.",
		}),
		Ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_ignored_samples_total",
			Help: "Samples whose reference sensor did not contribute a correction.",
		}, []string{"sensor"}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_recoveries_total",
			Help: "Samples that raised a recovery flag.",
		}, []string{"kind"}),
		Initialising: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_initialising",
			Help: "1 while the engine is in its initialisation window.",
		}),
		Errors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fusion_reference_error_degrees",
			Help: "Angle between measured and predicted reference direction.",
		}, []string{"sensor"}),
		Euler: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fusion_euler_degrees",
			Help: "Latest orientation as ZYX Euler angles.",
		}, []string{"axis"}),
		GyroBias: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fusion_gyroscope_bias_dps",
			Help: "Gyroscope offset estimate.",
		}, []string{"axis"}),
	}
	reg.MustRegister(m.Samples, m.Rejected, m.Ignored, m.Recoveries,
		m.Initialising, m.Errors, m.Euler, m.GyroBias)
	return m
}

// Observe records one output and the offset estimate that went with it.
func (m *Metrics) Observe(o *models.Output, bias r3.Vector) {
	m.Samples.Inc()

	if o.State.AccelerometerIgnored {
		m.Ignored.WithLabelValues("accelerometer").Inc()
	}
	if o.State.MagnetometerIgnored {
		m.Ignored.WithLabelValues("magnetometer").Inc()
	}
	if o.Flags.AngularRateRecovery {
		m.Recoveries.WithLabelValues("angular_rate").Inc()
	}
	if o.Flags.AccelerationRecovery {
		m.Recoveries.WithLabelValues("acceleration").Inc()
	}
	if o.Flags.MagneticRecovery {
		m.Recoveries.WithLabelValues("magnetic").Inc()
	}

	initialising := 0.0
	if o.Flags.Initialising {
		initialising = 1
	}
	m.Initialising.Set(initialising)

	m.Errors.WithLabelValues("accelerometer").Set(o.State.AccelerationError)
	m.Errors.WithLabelValues("magnetometer").Set(o.State.MagneticError)
	m.Euler.WithLabelValues("roll").Set(o.Euler.Roll)
	m.Euler.WithLabelValues("pitch").Set(o.Euler.Pitch)
	m.Euler.WithLabelValues("yaw").Set(o.Euler.Yaw)
	m.GyroBias.WithLabelValues("x").Set(bias.X)
	m.GyroBias.WithLabelValues("y").Set(bias.Y)
	m.GyroBias.WithLabelValues("z").Set(bias.Z)
}
