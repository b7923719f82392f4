package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., "0.0.0.0:5000")
//	-d string   PostgreSQL DSN
//	-s string   session/sealing secret key
//	-t int      session token validity, hours
//	-m string   default upstream model
//	-k string   shared API key
//	-i string   admin user identifier
//	-o int      upstream timeout, seconds
//	-l string   log level
//	-x          sandbox mode (synthesized replies)
//
// Notes:
//   - os.Args is first filtered with flagx.FilterArgs so flags owned by other
//     loaders (-c/-config) do not cause parse errors.
//   - Duration flags are integers in their documented unit.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-d", "-s", "-t", "-m", "-k", "-i", "-o", "-l"},
		"-x",
	)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Hours()), "token_validity_duration (in hours)")
	fs.StringVar(&config.GPTModel, "m", config.GPTModel, "default upstream model")
	fs.StringVar(&config.SharedAPIKey, "k", config.SharedAPIKey, "shared API key")
	fs.StringVar(&config.AdminIdentifier, "i", config.AdminIdentifier, "admin user identifier")
	upstreamTimeout := fs.Int("o", int(config.UpstreamTimeout.Seconds()), "upstream timeout (in seconds)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.Sandbox, "x", config.Sandbox, "sandbox mode")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Durations are only replaced when the flag was given, so sub-unit
	// values coming from JSON or the environment survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Hour
		case "o":
			config.UpstreamTimeout = time.Duration(*upstreamTimeout) * time.Second
		}
	})
}
