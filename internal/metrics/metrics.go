package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/thermo-emulator/internal/device"
	"github.com/taoyao-code/thermo-emulator/internal/protocol/thermo"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 模拟器业务指标
type AppMetrics struct {
	RequestTotal      *prometheus.CounterVec   // labels: cmd, status
	RequestDuration   *prometheus.HistogramVec // labels: cmd
	FrameErrorTotal   *prometheus.CounterVec   // labels: reason
	PacketBytesTotal  *prometheus.CounterVec   // labels: dir=rx|tx
	Temperature       prometheus.Gauge
	AlarmActive       *prometheus.GaugeVec     // labels: alarm
	FaultTotal        *prometheus.CounterVec   // labels: kind=drop|corrupt_crc
	EventPublishTotal *prometheus.CounterVec   // labels: publisher, result
	TCPAccepted       prometheus.Counter
	TCPRejected       *prometheus.CounterVec
	TCPOnline         prometheus.Gauge
	BLEWriteTotal     prometheus.Counter
	SerialReopenTotal prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermo_request_total",
			Help: "Requests dispatched by command and response status.",
		}, []string{"cmd", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thermo_request_duration_seconds",
			Help:    "Request handling latency.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		}, []string{"cmd"}),
		FrameErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermo_frame_error_total",
			Help: "Packets dropped without response, by reason.",
		}, []string{"reason"}),
		PacketBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermo_packet_bytes_total",
			Help: "Bytes received and sent by transports.",
		}, []string{"dir"}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermo_temperature_celsius",
			Help: "Last temperature reported by the emulated sensor.",
		}),
		AlarmActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermo_alarm_active",
			Help: "1 when the alarm channel is active.",
		}, []string{"alarm"}),
		FaultTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermo_fault_injected_total",
			Help: "Responses altered by fault injection.",
		}, []string{"kind"}),
		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermo_event_publish_total",
			Help: "Alarm event publish attempts.",
		}, []string{"publisher", "result"}),
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcp_reject_total",
			Help: "TCP connections rejected by per-host rate or connection limits.",
		}, []string{"reason"}),
		TCPOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tcp_online_connections",
			Help: "Current number of open TCP connections.",
		}),
		BLEWriteTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ble_write_total",
			Help: "GATT characteristic writes received.",
		}),
		SerialReopenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "serial_reopen_total",
			Help: "Serial port reopen attempts after I/O errors.",
		}),
	}
	reg.MustRegister(
		m.RequestTotal, m.RequestDuration, m.FrameErrorTotal, m.PacketBytesTotal,
		m.Temperature, m.AlarmActive, m.FaultTotal, m.EventPublishTotal,
		m.TCPAccepted, m.TCPRejected, m.TCPOnline, m.BLEWriteTotal, m.SerialReopenTotal,
	)
	return m
}

// ObserveResult 记录一次分发结果
func (m *AppMetrics) ObserveResult(req *thermo.Request, res thermo.Result, elapsed time.Duration) {
	cmd := "unknown"
	if id := req.Command.ID(); id != thermo.CommandUnknown {
		cmd = id.String()
	}
	m.RequestTotal.WithLabelValues(cmd, res.Status.String()).Inc()
	m.RequestDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())

	if res.Outcome != thermo.OutcomeOK || req.Command.ID() != thermo.CommandGetTemp {
		return
	}
	for _, it := range res.Fields {
		if t, ok := it.Value.(float32); ok && it.Tag == thermo.TagTemperature {
			m.Temperature.Set(float64(t))
		}
	}
}

// ObserveFrameError 记录丢弃的数据包
func (m *AppMetrics) ObserveFrameError(err error) {
	m.FrameErrorTotal.WithLabelValues(thermo.FramingReason(err)).Inc()
}

// ObserveAlarm 记录报警状态变化
func (m *AppMetrics) ObserveAlarm(tr device.AlarmTransition) {
	v := 0.0
	if tr.Active {
		v = 1
	}
	m.AlarmActive.WithLabelValues(device.AlarmName(tr.Alarm.ID)).Set(v)
}

// AddBytes 累计收发字节数
func (m *AppMetrics) AddBytes(dir string, n int) {
	m.PacketBytesTotal.WithLabelValues(dir).Add(float64(n))
}
