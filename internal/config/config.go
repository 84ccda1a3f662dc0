package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	DBDSN      string `envconfig:"DB_DSN" required:"true"`
	DBMaxConns int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	Port       string `envconfig:"PORT" default:"8080"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`

	// Graph API
	GraphBaseURL    string `envconfig:"GRAPH_BASE_URL" default:"https://graph.facebook.com"`
	GraphAPIVersion string `envconfig:"GRAPH_API_VERSION" default:"v21.0"`

	// Shared secret for the process-pending trigger endpoint. Empty disables
	// the check (local dev only).
	TriggerToken string `envconfig:"TRIGGER_TOKEN"`

	// Send pipeline knobs used when the API itself drives a run
	BatchSize int     `envconfig:"BATCH_SIZE" default:"20"`
	SendRPS   float64 `envconfig:"SEND_RPS" default:"5"`
	SendBurst int     `envconfig:"SEND_BURST" default:"10"`
}

type WorkerConfig struct {
	DBDSN      string `envconfig:"DB_DSN" required:"true"`
	DBMaxConns int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	Port       string `envconfig:"PORT" default:"8081"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`

	// Graph API
	GraphBaseURL    string `envconfig:"GRAPH_BASE_URL" default:"https://graph.facebook.com"`
	GraphAPIVersion string `envconfig:"GRAPH_API_VERSION" default:"v21.0"`

	// Drain loop
	PollInterval string  `envconfig:"POLL_INTERVAL" default:"2m"`
	BatchSize    int     `envconfig:"BATCH_SIZE" default:"20"`
	SendRPS      float64 `envconfig:"SEND_RPS" default:"5"`
	SendBurst    int     `envconfig:"SEND_BURST" default:"10"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
