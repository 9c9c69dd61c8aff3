package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

// AppMetrics 自定义业务指标
type AppMetrics struct {
	PollTotal       prometheus.Counter     // 设备POLL帧计数
	FrameTotal      *prometheus.CounterVec // labels: result=ok|dropped|error
	RecordTotal     *prometheus.CounterVec // labels: opcode
	RetryTotal      prometheus.Counter     // 丢ACK重试计数
	CommandResolved *prometheus.CounterVec // labels: status
	LinkReconnects  prometheus.Counter     // 串口重连计数
	BytesWritten    prometheus.Counter     // 下行字节数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		PollTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmc_poll_total",
			Help: "Total POLL frames received from the VMC.",
		}),
		FrameTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmc_frame_total",
			Help: "Inbound frame decode attempts.",
		}, []string{"result"}),
		RecordTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmc_record_total",
			Help: "Routed inbound records by opcode.",
		}, []string{"opcode"}),
		RetryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmc_retry_total",
			Help: "Missed-ack retries.",
		}),
		CommandResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vmc_command_resolved_total",
			Help: "Commands resolved to a business status.",
		}, []string{"status"}),
		LinkReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmc_link_reconnect_total",
			Help: "Serial link (re)connect attempts that succeeded.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vmc_bytes_written_total",
			Help: "Total bytes written to the serial link.",
		}),
	}
	reg.MustRegister(m.PollTotal, m.FrameTotal, m.RecordTotal, m.RetryTotal,
		m.CommandResolved, m.LinkReconnects, m.BytesWritten)
	return m
}
