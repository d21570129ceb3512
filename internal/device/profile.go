package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile 设备初始状态配置
type Profile struct {
	Temperature float32 `yaml:"temperature"`
	Alarms      []Alarm `yaml:"alarms"`
}

// DefaultProfile 温度 25.0，蜂鸣器 [10,30]，LED [15,35]
func DefaultProfile() *Profile {
	return &Profile{
		Temperature: DefaultTemperature,
		Alarms:      DefaultAlarms(),
	}
}

// LoadProfile 读取 YAML 配置文件，缺省项使用默认值
func LoadProfile(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device profile: %w", err)
	}
	p := DefaultProfile()
	p.Alarms = nil
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("unmarshal device profile: %w", err)
	}
	if p.Alarms == nil {
		p.Alarms = DefaultAlarms()
	}
	return p, nil
}
