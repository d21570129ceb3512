package device

// 合成日志策略
const (
	LogStride          uint64  = 300 // 每5分钟一条
	LogBaseline        float64 = 25.0
	LogSpread          float64 = 5.0
	DefaultMaxLogCount         = 100
)

// TemperatureDelta 单次读取温度的随机扰动幅度
const TemperatureDelta = 0.1

// GenerateLog 从 start 起按固定步长生成日志，直到超过 end 或达到 limit 条（含两端）
func GenerateLog(noise *Noise, start, end uint64, limit int) []LogEntry {
	var out []LogEntry
	for ts := start; ts <= end && len(out) < limit; ts += LogStride {
		out = append(out, LogEntry{
			Timestamp:   ts,
			Temperature: float32(noise.Uniform(LogBaseline-LogSpread, LogBaseline+LogSpread)),
		})
		// 防止 uint64 回绕
		if end-ts < LogStride {
			break
		}
	}
	return out
}
