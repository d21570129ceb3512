package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	// InstanceID 实例标识，为空时启动时生成
	InstanceID string `mapstructure:"instanceId"`
}

// HTTPConfig HTTP 服务配置（健康检查、指标、设备快照）
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// APIKeys 非空时 /api 路由要求 X-API-Key 或 Bearer 认证
	APIKeys []string `mapstructure:"apiKeys"`
}

// TCPConfig TCP 传输配置
type TCPConfig struct {
	Enable         bool          `mapstructure:"enable"`
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	MaxConnections int           `mapstructure:"maxConnections"`
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout"`
	// AcceptRate 每个来源主机每秒允许建立的连接数，0 表示不限速；AcceptBurst 缺省为其两倍
	AcceptRate  int `mapstructure:"acceptRate"`
	AcceptBurst int `mapstructure:"acceptBurst"`
}

// SerialConfig 串口传输配置
type SerialConfig struct {
	Enable      bool          `mapstructure:"enable"`
	Device      string        `mapstructure:"device"`
	Baud        int           `mapstructure:"baud"`
	ReopenDelay time.Duration `mapstructure:"reopenDelay"`
}

// BLEConfig BLE GATT 外设配置
type BLEConfig struct {
	Enable             bool   `mapstructure:"enable"`
	DeviceName         string `mapstructure:"deviceName"`
	ServiceUUID        string `mapstructure:"serviceUUID"`
	CharacteristicUUID string `mapstructure:"characteristicUUID"`
}

// DeviceConfig 模拟设备配置
type DeviceConfig struct {
	// Profile 初始状态 YAML 文件，为空使用内置默认值
	Profile string `mapstructure:"profile"`
	// Seed 随机种子，0 表示按时间播种
	Seed uint64 `mapstructure:"seed"`
}

// FaultConfig 故障注入配置
type FaultConfig struct {
	Enable         bool    `mapstructure:"enable"`
	DropRate       float64 `mapstructure:"dropRate"`
	CorruptCRCRate float64 `mapstructure:"corruptCRCRate"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig 报警事件推送用的 Redis 配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// Channel 报警事件频道
	Channel string `mapstructure:"channel"`
	// Encoding json | msgpack
	Encoding string `mapstructure:"encoding"`
	// HistoryKey 定长事件历史列表，HistoryLimit 为保留条数
	HistoryKey   string `mapstructure:"historyKey"`
	HistoryLimit int64  `mapstructure:"historyLimit"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	TCP     TCPConfig     `mapstructure:"tcp"`
	Serial  SerialConfig  `mapstructure:"serial"`
	BLE     BLEConfig     `mapstructure:"ble"`
	Device  DeviceConfig  `mapstructure:"device"`
	Fault   FaultConfig   `mapstructure:"fault"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// ErrInvalidConfig 配置取值非法
var ErrInvalidConfig = errors.New("invalid config")

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 THERMO_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("THERMO_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 THERMO_，并将点号替换为下划线
	v.SetEnvPrefix("THERMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 未指定文件时允许缺少配置，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Fault.DropRate < 0 || c.Fault.DropRate > 1 {
		return fmt.Errorf("%w: fault.dropRate %.3f not in [0,1]", ErrInvalidConfig, c.Fault.DropRate)
	}
	if c.Fault.CorruptCRCRate < 0 || c.Fault.CorruptCRCRate > 1 {
		return fmt.Errorf("%w: fault.corruptCRCRate %.3f not in [0,1]", ErrInvalidConfig, c.Fault.CorruptCRCRate)
	}
	switch strings.ToLower(c.Redis.Encoding) {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("%w: redis.encoding %q", ErrInvalidConfig, c.Redis.Encoding)
	}
	if c.Serial.Enable && c.Serial.Device == "" {
		return fmt.Errorf("%w: serial.device is required when serial is enabled", ErrInvalidConfig)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "thermo-emulator")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("tcp.enable", true)
	v.SetDefault("tcp.addr", ":7000")
	v.SetDefault("tcp.readTimeout", "5m")
	v.SetDefault("tcp.writeTimeout", "10s")
	v.SetDefault("tcp.maxConnections", 64)
	v.SetDefault("tcp.acquireTimeout", "1s")
	v.SetDefault("tcp.acceptRate", 50)
	v.SetDefault("tcp.acceptBurst", 100)

	v.SetDefault("serial.enable", false)
	v.SetDefault("serial.baud", 115200)
	v.SetDefault("serial.reopenDelay", "2s")

	v.SetDefault("ble.enable", false)
	v.SetDefault("ble.deviceName", "ThermoEmu")
	v.SetDefault("ble.serviceUUID", "180F")
	v.SetDefault("ble.characteristicUUID", "2A19")

	v.SetDefault("device.profile", "")
	v.SetDefault("device.seed", 0)

	v.SetDefault("fault.enable", false)
	v.SetDefault("fault.dropRate", 0.0)
	v.SetDefault("fault.corruptCRCRate", 0.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/thermo-emulator.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 1)
	v.SetDefault("redis.dialTimeout", "3s")
	v.SetDefault("redis.readTimeout", "1s")
	v.SetDefault("redis.writeTimeout", "1s")
	v.SetDefault("redis.channel", "thermo:alarm")
	v.SetDefault("redis.encoding", "json")
	v.SetDefault("redis.historyKey", "thermo:alarm:history")
	v.SetDefault("redis.historyLimit", 1000)
}
