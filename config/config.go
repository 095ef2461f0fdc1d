package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/dominus1122/TaskManager2026/core"
)

type Config struct {
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
	DBDriver      string `yaml:"db_driver" env:"DB_DRIVER" env-default:"pgx"`
	DBAddress     string `yaml:"db_address" env:"DB_ADDRESS" env-required:"true"`
	SweepSchedule string `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE" env-default:"@every 1m"`

	EnableTimeTracking   bool `yaml:"enable_time_tracking" env:"ENABLE_TIME_TRACKING" env-default:"true"`
	EnableSubtasks       bool `yaml:"enable_subtasks" env:"ENABLE_SUBTASKS" env-default:"true"`
	EnableTemplates      bool `yaml:"enable_templates" env:"ENABLE_TEMPLATES" env-default:"true"`
	EnableAdvancedSearch bool `yaml:"enable_advanced_search" env:"ENABLE_ADVANCED_SEARCH" env-default:"true"`

	// AutoStopTimerAfterHours of 0 disables auto-stop.
	AutoStopTimerAfterHours float64 `yaml:"auto_stop_timer_after_hours" env:"AUTO_STOP_TIMER_AFTER_HOURS" env-default:"0"`
	// LongSessionThresholdHours only flags sessions, it never stops them.
	LongSessionThresholdHours float64 `yaml:"long_session_threshold_hours" env:"LONG_SESSION_THRESHOLD_HOURS" env-default:"8"`
}

func MustLoad(configPath string) Config {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("cannot read env: %s", err)
		}
		return cfg
	}

	// try the file first, fall back to env when it does not exist
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) {
			if err := cleanenv.ReadEnv(&cfg); err != nil {
				log.Fatalf("cannot read env: %s", err)
			}
			return cfg
		}
		log.Fatalf("cannot read config %q: %s", configPath, err)
	}

	return cfg
}

func (c Config) Features() core.Features {
	return core.Features{
		TimeTracking:   c.EnableTimeTracking,
		Subtasks:       c.EnableSubtasks,
		Templates:      c.EnableTemplates,
		AdvancedSearch: c.EnableAdvancedSearch,
	}
}

func (c Config) TimerSettings() core.TimerSettings {
	return core.TimerSettings{
		AutoStopAfter:        time.Duration(c.AutoStopTimerAfterHours * float64(time.Hour)),
		LongSessionThreshold: time.Duration(c.LongSessionThresholdHours * float64(time.Hour)),
	}
}
