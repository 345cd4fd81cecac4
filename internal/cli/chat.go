package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"t0/internal/apikey"
	"t0/internal/config"
	"t0/internal/envfile"
	"t0/internal/llm"
)

type chatOptions struct {
	InputFile string
}

func newChatCmd(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send one chat completion through the gateway HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, a, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.String("base-url", config.DefaultBaseURL, "OpenAI-compatible base url")
	flags.String("model", config.DefaultModel, "model name")
	flags.String("prompt", config.DefaultHTTPInput, "user message")
	flags.StringVarP(&opts.InputFile, "file", "F", "", "prompt file, use -F- for stdin")
	_ = a.v.BindPFlag("http.base_url", flags.Lookup("base-url"))
	_ = a.v.BindPFlag("http.model", flags.Lookup("model"))
	_ = a.v.BindPFlag("http.prompt", flags.Lookup("prompt"))
	return cmd
}

func runChat(cmd *cobra.Command, a *app, opts *chatOptions, args []string) error {
	out := cmd.OutOrStdout()
	cfg := a.cfg.HTTP

	token := a.env.Get(envfile.OpenAIAPIKey)
	if token == "" {
		fmt.Fprintf(out, "Set %s environment variable\n", envfile.OpenAIAPIKey)
		fmt.Fprintf(out, "   Format: %s\n", apikey.Format)
		return &ExitError{Code: 1}
	}
	if _, err := apikey.Parse(token); err != nil {
		a.logger.Warn("unexpected api key format", zap.String("key", apikey.Mask(token)), zap.Error(err))
	}

	prompt, err := readPrompt(args, opts.InputFile, cmd.InOrStdin(), cfg.Prompt)
	if err != nil {
		return err
	}
	if err := requirePrompt(prompt); err != nil {
		return err
	}

	client, err := a.deps.newChatClient(cfg.BaseURL, token, cfg.Model)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Calling OpenAI via TensorZero (Auth Enabled)...")
	fmt.Fprintf(out, "Using TensorZero API key: %s\n", apikey.Mask(token))

	resp, err := client.Chat(cmd.Context(), llm.ChatRequest{
		Model:    cfg.Model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	a.metrics.RecordTokens(cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	fmt.Fprintln(out)
	fmt.Fprintln(out, resp.Content)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Tokens: %d\n", resp.Usage.TotalTokens)
	fmt.Fprintln(out, "Auth: Enabled")
	return nil
}
