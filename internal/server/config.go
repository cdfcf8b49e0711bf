package server

import (
	"os"
	"strconv"
	"time"

	"github.com/openjobspec/ojs-job-chief/internal/core"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port     string
	GRPCPort string
	NatsURL  string

	QueuesFile string

	KubeNamespace  string
	Kubeconfig     string
	PullSecret     string
	InstanceUID    string
	Environment    string
	NatsTLSSecret  string
	InformerResync time.Duration

	CleanupInterval      time.Duration
	MaxJobAge            time.Duration
	MonitorStateInterval time.Duration
	TriggerPollInterval  time.Duration

	HistoryDBPath string
	HistoryMaxAge time.Duration

	LogLevel  string
	LogFormat string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Port:     getEnv("JOB_CHIEF_PORT", "8080"),
		GRPCPort: getEnv("JOB_CHIEF_GRPC_PORT", "9090"),
		NatsURL:  getEnv("NATS_URL", "nats://localhost:4222"),

		QueuesFile: getEnv("JOB_CHIEF_QUEUES_FILE", "config/queues.yaml"),

		KubeNamespace:  getEnv("KUBE_NAMESPACE", "default"),
		Kubeconfig:     getEnv("KUBECONFIG", ""),
		PullSecret:     getEnv("KUBE_PULL_SECRET", ""),
		InstanceUID:    getEnv("JOB_CHIEF_INSTANCE_UID", "local"),
		Environment:    getEnv("JOB_CHIEF_ENVIRONMENT", "development"),
		NatsTLSSecret:  getEnv("NATS_TLS_SECRET", ""),
		InformerResync: getEnvDuration("KUBE_INFORMER_RESYNC", 10*time.Minute),

		CleanupInterval:      getEnvDuration("JOB_CLEANUP_INTERVAL", time.Hour),
		MaxJobAge:            getEnvDuration("JOB_MAX_AGE_FOR_DELETION", 24*time.Hour),
		MonitorStateInterval: getEnvDuration("MONITOR_STATE_INTERVAL", 10*time.Second),
		TriggerPollInterval:  getEnvDuration("TRIGGER_POLL_INTERVAL", time.Second),

		HistoryDBPath: getEnv("HISTORY_DB_PATH", "job-chief.db"),
		HistoryMaxAge: getEnvDuration("HISTORY_MAX_AGE", 7*24*time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ReadTimeout:     getEnvDuration("JOB_CHIEF_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getEnvDuration("JOB_CHIEF_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("JOB_CHIEF_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("90s", "1h30m") and the queue file
// form ("1d").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if d, err := core.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}
