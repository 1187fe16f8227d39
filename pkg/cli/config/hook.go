package config

import "github.com/urfave/cli/v3"

// Hook holds event notification endpoint configuration
type Hook struct {
	Secret string
}

// Flags returns CLI flags for hook configuration
func (c *Hook) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "hook-secret",
			Usage:       "Shared secret verifying inbound event notifications",
			Required:    true,
			Destination: &c.Secret,
			Sources:     cli.EnvVars("DROVER_HOOK_SECRET"),
		},
	}
}
