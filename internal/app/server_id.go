package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 生成实例ID：配置值优先，其次环境变量 THERMO_INSTANCE_ID，
// 否则生成 thermo-emulator-{hostname}-{uuid前8位}
func GenerateServerID(configured string) string {
	if configured != "" {
		return configured
	}
	if id := os.Getenv("THERMO_INSTANCE_ID"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("thermo-emulator-%s-%s", hostname, uuid.NewString()[:8])
}
