package config

import "go.uber.org/fx"

// Module отдаёт уже загруженный *Config: логгер и трейсер в main
// настраиваются по нему до старта fx.
func Module(cfg *Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
	)
}
