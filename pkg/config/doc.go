// Package config loads the service configuration from the environment.
//
// Config groups env-tagged structs read with cleanenv:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    slog.Error("Invalid configuration", "err", err)
//	    os.Exit(1)
//	}
//
// Load validates the result with the Require* helpers and returns a
// ValidationErrors listing every problem at once. In production
// (APP_ENV=production) the built-in development secrets are rejected.
//
// StackConfig and SessionConfig use the same field names as olduser.Options
// and sessions.Options so callers can copy them with copier.
package config
