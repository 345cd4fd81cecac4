package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"t0/internal/config"
	"t0/internal/envfile"
	"t0/internal/gateway"
	"t0/internal/llm"
	"t0/internal/metrics"
)

// EmbeddedClient is the part of *gateway.Gateway the inference command uses.
type EmbeddedClient interface {
	Inference(ctx context.Context, params gateway.Params) (*gateway.Response, error)
	Close() error
}

// deps holds everything a command reaches outside the process for.
type deps struct {
	environ       func() []string
	buildEmbedded func(ctx context.Context, opts gateway.Options) (EmbeddedClient, error)
	newChatClient func(baseURL, token, model string) (llm.Client, error)
}

func defaultDeps() deps {
	return deps{
		environ: os.Environ,
		buildEmbedded: func(ctx context.Context, opts gateway.Options) (EmbeddedClient, error) {
			g, err := gateway.BuildEmbedded(ctx, opts)
			if err != nil {
				return nil, err
			}
			return g, nil
		},
		newChatClient: func(baseURL, token, model string) (llm.Client, error) {
			return llm.NewOpenAIClient(llm.OpenAIConfig{
				BaseURL: baseURL,
				Token:   token,
				Model:   model,
			})
		},
	}
}

type rootOptions struct {
	Config string
}

// app is the state shared by all commands once the root pre-run has loaded it.
type app struct {
	deps deps
	v    *viper.Viper

	cfg      config.Config
	env      *envfile.Env
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newRootCmd(d deps) *cobra.Command {
	opts := &rootOptions{}
	a := &app{
		deps:   d,
		v:      viper.New(),
		logger: zap.NewNop(),
	}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:           "t0",
		Short:         "t0 - inference gateway client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(opts.Config)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.Config, "config", "", "config file (default: ./t0.yaml)")
	flags.String("env-file", config.DefaultEnvFile, "dotenv file loaded before the commands run")
	flags.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.String("metrics-textfile", "", "write prometheus metrics to this file on exit")
	_ = a.v.BindPFlag("env_file", flags.Lookup("env-file"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("metrics.textfile", flags.Lookup("metrics-textfile"))

	root.AddCommand(newInferenceCmd(a))
	root.AddCommand(newChatCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) init(configFile string) error {
	if err := readConfig(a.v, configFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.logger = logger

	env, err := envfile.Load(cfg.EnvFile, a.deps.environ())
	if err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	a.env = env
	a.logger.Debug("environment loaded", zap.String("env_file", cfg.EnvFile), zap.Int("keys", env.Len()))

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	return nil
}

func (a *app) finish() error {
	defer func() { _ = a.logger.Sync() }()
	if a.cfg.Metrics.Textfile == "" || a.registry == nil {
		return nil
	}
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("t0")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/t0")
	}

	v.SetEnvPrefix("T0")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
