package device

// 报警通道
const (
	AlarmBuzzer uint8 = 0 // 蜂鸣器
	AlarmLED    uint8 = 1 // LED
)

// 默认值
const (
	DefaultTemperature float32 = 25.0

	// packetNumberModulo 包编号取值 0..127
	packetNumberModulo = 0x80
)

// Alarm 报警阈值配置
type Alarm struct {
	ID   uint8   `yaml:"id" json:"id"`
	Low  float32 `yaml:"low" json:"low"`
	High float32 `yaml:"high" json:"high"`
}

// Triggered 温度越过上下限
func (a Alarm) Triggered(t float32) bool {
	return t < a.Low || t > a.High
}

// DefaultAlarms 蜂鸣器 [10,30]，LED [15,35]
func DefaultAlarms() []Alarm {
	return []Alarm{
		{ID: AlarmBuzzer, Low: 10, High: 30},
		{ID: AlarmLED, Low: 15, High: 35},
	}
}

// LogEntry 温度日志条目（合成数据，不持久化）
type LogEntry struct {
	Timestamp   uint64  `json:"timestamp"`
	Temperature float32 `json:"temperature"`
}

// State 设备内存状态，只由指令分发器修改。
// 值语义：处理器在副本上计算新状态，成功后由分发器整体替换。
type State struct {
	Temperature float32
	Alarms      []Alarm
	// Active 当前处于报警状态的通道ID
	Active map[uint8]bool

	packetCounter uint16
}

// NewState 按配置文件创建初始状态，profile 为 nil 时使用固定默认值
func NewState(p *Profile) State {
	if p == nil {
		p = DefaultProfile()
	}
	return State{
		Temperature: p.Temperature,
		Alarms:      append([]Alarm(nil), p.Alarms...),
		Active:      make(map[uint8]bool),
	}
}

// Clone 深拷贝
func (s State) Clone() State {
	c := s
	c.Alarms = append([]Alarm(nil), s.Alarms...)
	c.Active = make(map[uint8]bool, len(s.Active))
	for id, on := range s.Active {
		c.Active[id] = on
	}
	return c
}

// NextPacketNumber 分配下一个包编号（1,2,...,127,0,1,...）
func (s *State) NextPacketNumber() uint16 {
	s.packetCounter = (s.packetCounter + 1) % packetNumberModulo
	return s.packetCounter
}

// PacketCounter 最近一次分配的包编号
func (s State) PacketCounter() uint16 { return s.packetCounter }

// ReplaceAlarms 整体替换报警配置并清空报警状态
func (s *State) ReplaceAlarms(alarms []Alarm) {
	s.Alarms = append([]Alarm(nil), alarms...)
	s.Active = make(map[uint8]bool)
}
