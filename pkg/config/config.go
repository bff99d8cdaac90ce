package config

import "time"

// Transcode definition transcode_service YAML structure
type Transcode struct {
	Port string `mapstructure:"port"`
	IP   string `mapstructure:"ip"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	RabbitMQ   RabbitConfig   `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Worker     WorkerConfig   `mapstructure:"worker"`
}

// WorkerConfig definition worker pool / retry / timeout setting
// 全部由外部供給，core 不自行推算
type WorkerConfig struct {
	Count       int           `mapstructure:"count"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	SoftTimeout time.Duration `mapstructure:"soft_timeout"`
	HardTimeout time.Duration `mapstructure:"hard_timeout"`

	// inline fallback 的有界背景執行資源
	InlineWorkers   int `mapstructure:"inline_workers"`
	InlineQueueSize int `mapstructure:"inline_queue_size"`

	// 擱淺任務（worker 掛掉留下的 PROGRESS）巡檢間隔
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`

	ScratchDir string `mapstructure:"scratch_dir"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	RedisDB       int    `mapstructure:"redis_db"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`

	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// RabbitConfig definition rabbitmq setting
type RabbitConfig struct {
	IP       string `mapstructure:"ip"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting, brokers 留空則不發佈事件
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}
