package config

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12322"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"MAILBRIDGE_POSTGRES_HOST,required"`
	Port            string `env:"MAILBRIDGE_POSTGRES_PORT,required"`
	User            string `env:"MAILBRIDGE_POSTGRES_USER,required"`
	DBName          string `env:"MAILBRIDGE_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILBRIDGE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILBRIDGE_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILBRIDGE_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILBRIDGE_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILBRIDGE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILBRIDGE_POSTGRES_SSL_MODE" envDefault:"require"`
}

type TelegramConfig struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	APIBase  string `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org"`
}

type TrackerConfig struct {
	// BaseURL of the issue tracker; issue links look like <BaseURL>/browse/KEY-123.
	BaseURL string `env:"TRACKER_BASE_URL" envDefault:"https://jira.task-cloud.ru"`
	// Markers identify a tracker notification email when found in its HTML body.
	Markers []string `env:"TRACKER_MARKERS" envSeparator:"," envDefault:"jira.task-cloud.ru,atlassian jira"`
}

type PollerConfig struct {
	// SearchWindow caps how far back a pass searches regardless of downtime.
	SearchWindowMinutes int `env:"POLLER_SEARCH_WINDOW_MINUTES" envDefault:"15"`
	FetchRetries        int `env:"POLLER_FETCH_RETRIES" envDefault:"3"`
	FetchRetryDelaySec  int `env:"POLLER_FETCH_RETRY_DELAY_SECONDS" envDefault:"10"`
}
