package main

import (
	"github.com/ferdifleet/console/core/apiclient"
	"github.com/ferdifleet/console/core/cookie"
	"github.com/ferdifleet/console/core/monitor"
	"github.com/ferdifleet/console/core/server"
	"github.com/ferdifleet/console/core/session"
)

// appConfig aggregates all gateway settings. Values come from the environment
// (a .env file is honored) via the nested structs' env tags.
type appConfig struct {
	AppName string `env:"APP_NAME" envDefault:"ferdi-console"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
	LogJSON bool   `env:"LOG_JSON" envDefault:"true"`

	// RedisURL enables session persistence across gateway restarts.
	// Empty keeps the in-memory store.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// MockData is forwarded to the UI in the session payload so demo
	// deployments can flag themselves. The gateway itself never fakes data.
	MockData bool `env:"MOCK_DATA" envDefault:"false"`

	Server  server.Config
	Backend apiclient.Config
	Session session.Config
	Monitor monitor.Config
	Cookie  cookie.Config
}
