package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	tlsCert        string
	tlsKey         string
	verbose        bool

	sessionTimeout time.Duration
	graceTimeout   time.Duration

	redis         string
	redisPassword string
	redisDB       int
	questions     string

	ttsEndpoint string
	ttsCache    string

	bots bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.redis == "" && c.questions == "" {
		return errors.New("a question source is required: --redis and/or --questions")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) logger() (*zap.Logger, error) {
	if c.verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("NERDQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "nerdquiz",
		Short:         "An authoritative real-time server for a multiplayer quiz party game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: NERDQUIZ_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: NERDQUIZ_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: NERDQUIZ_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: NERDQUIZ_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: NERDQUIZ_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: NERDQUIZ_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: NERDQUIZ_VERBOSE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are ended (env: NERDQUIZ_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.graceTimeout, "grace-timeout", 2*time.Minute, "time before fully disconnected rooms are ended (env: NERDQUIZ_GRACE_TIMEOUT)")
	fs.StringVar(&cfg.redis, "redis", "", "redis address for the question store (env: NERDQUIZ_REDIS)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: NERDQUIZ_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database number (env: NERDQUIZ_REDIS_DB)")
	fs.StringVar(&cfg.questions, "questions", "", "path to a YAML question pack (env: NERDQUIZ_QUESTIONS)")
	fs.StringVar(&cfg.ttsEndpoint, "tts-endpoint", "", "speech synthesis service URL, empty disables narration (env: NERDQUIZ_TTS_ENDPOINT)")
	fs.StringVar(&cfg.ttsCache, "tts-cache", "./tts-cache", "directory for cached narration URLs (env: NERDQUIZ_TTS_CACHE)")
	fs.BoolVar(&cfg.bots, "bots", false, "enable the development bot driver (env: NERDQUIZ_BOTS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("nerdquiz v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
