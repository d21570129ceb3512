package device

// AlarmTransition 报警通道状态变化
type AlarmTransition struct {
	Alarm       Alarm
	Active      bool
	Temperature float32
}

// EvaluateAlarms 按当前温度检查所有报警通道，更新 Active 并返回发生变化的通道
func (s *State) EvaluateAlarms() []AlarmTransition {
	if s.Active == nil {
		s.Active = make(map[uint8]bool)
	}
	var out []AlarmTransition
	for _, a := range s.Alarms {
		on := a.Triggered(s.Temperature)
		if on == s.Active[a.ID] {
			continue
		}
		if on {
			s.Active[a.ID] = true
		} else {
			delete(s.Active, a.ID)
		}
		out = append(out, AlarmTransition{Alarm: a, Active: on, Temperature: s.Temperature})
	}
	return out
}

// AlarmName 通道名称
func AlarmName(id uint8) string {
	switch id {
	case AlarmBuzzer:
		return "buzzer"
	case AlarmLED:
		return "led"
	default:
		return "unknown"
	}
}
