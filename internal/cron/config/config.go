package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox polling pass, every minute
	CronScheduleMailCheck string `env:"CRON_SCHEDULE_MAIL_CHECK" envDefault:"0 * * * * *"`
}
