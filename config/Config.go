package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	HttpPort                   int
	StorageType                StorageType
	RedisConfig                RedisStorageConfig
	LogLevel                   string
	WorkerPoolSize             int
	StepConcurrency            int
	QueueCapacity              int
	DefaultStepTimeoutSeconds  int
	InterventionTimeoutSeconds int
	MonitorIntervalSeconds     int
	StuckThresholdSeconds      int
	AuditLogFile               string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
