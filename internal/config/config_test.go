package config_test

import (
	"errors"
	"testing"

	"github.com/okian/skyscraper/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.DailyCron, convey.ShouldEqual, "0 1 * * *")
			convey.So(cfg.AutoSchedule, convey.ShouldBeTrue)
			convey.So(cfg.PublishAttempts, convey.ShouldEqual, 3)
			convey.So(cfg.CallTimeout().Seconds(), convey.ShouldEqual, 5)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with a single bad field", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"zero timeout", func(c *config.Config) { c.CallTimeoutMS = 0 }},
			{"zero publish attempts", func(c *config.Config) { c.PublishAttempts = 0 }},
			{"zero leaderboard limit", func(c *config.Config) { c.MaxLeaderboardLimit = 0 }},
			{"negative redis db", func(c *config.Config) { c.RedisDB = -1 }},
			{"unknown backend", func(c *config.Config) { c.StoreBackend = "etcd" }},
			{"sqlite without path", func(c *config.Config) { c.StoreBackend = config.BackendSQLite; c.SQLitePath = "" }},
			{"redis without addr", func(c *config.Config) { c.StoreBackend = config.BackendRedis; c.RedisAddr = "" }},
			{"bad cron", func(c *config.Config) { c.DailyCron = "every day" }},
		}
		for _, tc := range cases {
			convey.Convey("Then validation rejects "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a descriptor cron", t, func() {
		cfg := config.New()
		cfg.DailyCron = "@daily"
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
