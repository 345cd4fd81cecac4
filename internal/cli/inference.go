package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"t0/internal/config"
	"t0/internal/gateway"
	"t0/internal/llm"
)

type inferenceOptions struct {
	InputFile string
	Variant   string
	Dryrun    bool
}

func newInferenceCmd(a *app) *cobra.Command {
	opts := &inferenceOptions{}
	cmd := &cobra.Command{
		Use:   "inference [prompt...]",
		Short: "Run one function inference through the embedded gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInference(cmd, a, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.String("clickhouse-url", config.DefaultClickHouseURL, "storage url for inference records")
	flags.String("config-file", config.DefaultGatewayConfig, "gateway TOML config file")
	flags.String("function", config.DefaultFunction, "function to call")
	flags.String("prompt", config.DefaultEmbeddedInput, "user message")
	flags.StringVarP(&opts.InputFile, "file", "F", "", "prompt file, use -F- for stdin")
	flags.StringVar(&opts.Variant, "variant", "", "pin a variant instead of the configured default")
	flags.BoolVar(&opts.Dryrun, "dryrun", false, "do not store the inference")
	_ = a.v.BindPFlag("embedded.clickhouse_url", flags.Lookup("clickhouse-url"))
	_ = a.v.BindPFlag("embedded.config_file", flags.Lookup("config-file"))
	_ = a.v.BindPFlag("embedded.function", flags.Lookup("function"))
	_ = a.v.BindPFlag("embedded.prompt", flags.Lookup("prompt"))
	return cmd
}

func runInference(cmd *cobra.Command, a *app, opts *inferenceOptions, args []string) (err error) {
	cfg := a.cfg.Embedded
	prompt, err := readPrompt(args, opts.InputFile, cmd.InOrStdin(), cfg.Prompt)
	if err != nil {
		return err
	}
	if err := requirePrompt(prompt); err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := a.deps.buildEmbedded(ctx, gateway.Options{
		StorageURL: cfg.ClickHouseURL,
		ConfigFile: cfg.ConfigFile,
		Env:        a.env,
		Logger:     a.logger,
		Metrics:    a.metrics,
	})
	if err != nil {
		return fmt.Errorf("build embedded gateway: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			a.logger.Warn("failed to close embedded gateway", zap.Error(closeErr))
			if err == nil {
				err = fmt.Errorf("close embedded gateway: %w", closeErr)
			}
		}
	}()

	resp, err := client.Inference(ctx, gateway.Params{
		FunctionName: cfg.Function,
		VariantName:  opts.Variant,
		Input: gateway.Input{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		},
		Dryrun: opts.Dryrun,
	})
	if err != nil {
		return fmt.Errorf("inference %s: %w", cfg.Function, err)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}
