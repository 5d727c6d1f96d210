package temporalx

import (
	"time"

	"github.com/yungbote/brandpulse-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	DialTimeout           time.Duration
	DialMaxWait           time.Duration
	BackoffBase           time.Duration
	BackoffMax            time.Duration
}

// Enabled reports whether jobs should be dispatched through temporal.
func (c Config) Enabled() bool { return c.Address != "" }

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "brandpulse"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "brandpulse"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		DialTimeout:           envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:           envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second),
		BackoffBase:           envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond),
		BackoffMax:            envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second),
	}
}

// ClampBackoff doubles base per attempt, capped at max.
func ClampBackoff(base time.Duration, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}
