package adapter

// Adapter 字节流协议适配器接口：传输层只负责收发字节
// ProcessBytes 处理来自连接的原始字节流（内部负责半包/粘包与重新同步），返回错误表示回写失败
type Adapter interface {
	ProcessBytes(p []byte) error
}
