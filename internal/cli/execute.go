package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"staten/internal/clients"
	"staten/internal/version"
)

// Execute runs the CLI with the provided args and manager.
func Execute(args []string, manager Manager, out, errOut io.Writer) int {
	return ExecuteContext(context.Background(), args, manager, out, errOut)
}

// ExecuteContext is Execute with a caller-supplied context, typically one
// canceled on interrupt.
func ExecuteContext(ctx context.Context, args []string, manager Manager, out, errOut io.Writer) int {
	cmd := NewRootCommand(manager, out, errOut)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(errOut, "Error:", usageErr.Error())
			return ExitInvalidUsage
		}
		var runErr *runtimeError
		if !errors.As(err, &runErr) {
			// cobra's own argument and flag errors
			fmt.Fprintln(errOut, "Error:", err.Error())
			return ExitInvalidUsage
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

// NewRootCommand builds the root CLI command tree.
func NewRootCommand(manager Manager, out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "staten",
		Short:         "install MCP apps into Claude Desktop and Cursor",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().Bool("json", false, "output JSONL")

	root.AddCommand(newVersionCommand())
	root.AddCommand(newClientCommand(manager))
	root.AddCommand(newAppCommand(manager))
	root.AddCommand(newOnboardingCommand(manager))
	root.AddCommand(newMCPCommand(manager))
	root.AddCommand(newUICommand(manager))

	return root
}

type usageError struct {
	err error
}

func (u *usageError) Error() string {
	if u.err == nil {
		return "invalid usage"
	}
	return u.err.Error()
}

func requireArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return &usageError{err: fmt.Errorf("requires %d argument(s)", n)}
		}
		return nil
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: info.String(), Data: info})
		},
	}
}

func newClientCommand(manager Manager) *cobra.Command {
	show := func(cmd *cobra.Command, _ []string) error {
		status, err := manager.ClientShow(cmd.Context())
		if err != nil {
			return writeError(cmd, err)
		}
		message := status.DisplayName
		if !status.HostInstalled {
			message += " (not installed)"
		}
		return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: message, Data: status})
	}

	client := &cobra.Command{
		Use:   "client",
		Short: "show or select the host client",
		RunE:  show,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "show the selected host client",
		RunE:  show,
	}

	useCmd := &cobra.Command{
		Use:   "use <client>",
		Short: "select the host client (claude, cursor)",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := clients.Parse(args[0])
			if err != nil {
				return &usageError{err: err}
			}
			if err := manager.ClientUse(cmd.Context(), selected); err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{
				Type:    EventSuccess,
				Message: fmt.Sprintf("Using %s", selected.DisplayName()),
			})
		},
	}

	client.AddCommand(showCmd, useCmd)
	return client
}

func newAppCommand(manager Manager) *cobra.Command {
	app := &cobra.Command{
		Use:   "app",
		Short: "manage apps",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list apps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			apps, err := manager.AppList(cmd.Context(), all)
			if err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: renderApps(apps), Data: apps})
		},
	}
	listCmd.Flags().Bool("all", false, "include hidden apps")

	statusCmd := &cobra.Command{
		Use:   "status <app>",
		Short: "show app status and configuration",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := manager.AppStatus(cmd.Context(), args[0])
			if err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: renderApp(status), Data: status})
		},
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle <app>",
		Short: "install or uninstall an app",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := toggleOptions(cmd)
			if err != nil {
				return err
			}
			return streamEvents(cmd, manager.AppToggle(cmd.Context(), args[0], opts))
		},
	}
	addValueFlags(toggleCmd)
	toggleCmd.Flags().Bool("force", false, "install even if the host client is not detected")

	configureCmd := &cobra.Command{
		Use:   "configure <app>",
		Short: "save configuration values for an app",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := toggleOptions(cmd)
			if err != nil {
				return err
			}
			if len(opts.Values) == 0 {
				return &usageError{err: errors.New("configure requires --set or --env-file")}
			}
			return streamEvents(cmd, manager.AppConfigure(cmd.Context(), args[0], opts))
		},
	}
	addValueFlags(configureCmd)

	envCmd := &cobra.Command{
		Use:   "env <app>",
		Short: "print stored configuration values",
		Args:  requireArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := manager.AppEnv(cmd.Context(), args[0])
			if err != nil {
				return writeError(cmd, err)
			}
			message := renderEnv(env)
			if dotenv, _ := cmd.Flags().GetBool("dotenv"); dotenv {
				if message, err = godotenv.Marshal(env); err != nil {
					return writeError(cmd, err)
				}
			}
			return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: message, Data: env})
		},
	}
	envCmd.Flags().Bool("dotenv", false, "print as a .env file")

	app.AddCommand(listCmd, statusCmd, toggleCmd, configureCmd, envCmd)
	return app
}

func addValueFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("set", nil, "configuration value as KEY=VALUE (repeatable)")
	cmd.Flags().String("env-file", "", "read configuration values from a .env file")
	cmd.Flags().Bool("relaunch", false, "relaunch the host client afterwards")
}

// toggleOptions merges --env-file and --set; --set wins.
func toggleOptions(cmd *cobra.Command) (ToggleOptions, error) {
	opts := ToggleOptions{Values: map[string]string{}}
	opts.Relaunch, _ = cmd.Flags().GetBool("relaunch")
	if cmd.Flags().Lookup("force") != nil {
		opts.Force, _ = cmd.Flags().GetBool("force")
	}

	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		values, err := godotenv.Read(path)
		if err != nil {
			return ToggleOptions{}, &usageError{err: fmt.Errorf("read env file: %w", err)}
		}
		for key, value := range values {
			opts.Values[key] = value
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("set")
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return ToggleOptions{}, &usageError{err: fmt.Errorf("invalid --set %q, want KEY=VALUE", pair)}
		}
		opts.Values[strings.TrimSpace(key)] = value
	}
	return opts, nil
}

func newOnboardingCommand(manager Manager) *cobra.Command {
	onboarding := &cobra.Command{
		Use:   "onboarding",
		Short: "run or inspect onboarding",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "show onboarding status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := manager.OnboardingStatus(cmd.Context())
			if err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: renderOnboarding(status), Data: status})
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "install the bootstrap app and wait for the greeting in the host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			launch, _ := cmd.Flags().GetBool("launch")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return streamEvents(cmd, manager.OnboardingRun(ctx, RunOptions{Launch: launch}))
		},
	}
	runCmd.Flags().Bool("launch", false, "launch the host client, or open its download page")
	runCmd.Flags().Duration("timeout", 10*time.Minute, "how long to wait for the greeting")

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "mark the onboarding greeting as received",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := manager.OnboardingComplete(cmd.Context()); err != nil {
				return writeError(cmd, err)
			}
			return writeEvent(cmd, ProgressEvent{Type: EventSuccess, Message: "Onboarding action completed"})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "run onboarding again on next start",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return streamEvents(cmd, manager.OnboardingReset(cmd.Context()))
		},
	}

	bootstrapCmd := &cobra.Command{
		Use:       "bootstrap [on|off]",
		Short:     "show or change whether the bootstrap app is installed",
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				status, err := manager.OnboardingStatus(cmd.Context())
				if err != nil {
					return writeError(cmd, err)
				}
				state := "off"
				if status.BootstrapEnabled {
					state = "on"
				}
				return writeEvent(cmd, ProgressEvent{Type: EventResult, Message: state, Data: status.BootstrapEnabled})
			}
			switch args[0] {
			case "on":
				return streamEvents(cmd, manager.OnboardingBootstrap(cmd.Context(), true))
			case "off":
				return streamEvents(cmd, manager.OnboardingBootstrap(cmd.Context(), false))
			}
			return &usageError{err: fmt.Errorf("want on or off, got %q", args[0])}
		},
	}

	onboarding.AddCommand(statusCmd, runCmd, completeCmd, resetCmd, bootstrapCmd)
	return onboarding
}

func newMCPCommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "serve the bootstrap MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := manager.ServeMCP(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				return &runtimeError{err: err}
			}
			return nil
		},
	}
}

func newUICommand(manager Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "open the interactive catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := manager.RunUI(cmd.Context()); err != nil {
				return writeError(cmd, err)
			}
			return nil
		},
	}
}

func streamEvents(cmd *cobra.Command, events <-chan ProgressEvent) error {
	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	hasError := false
	for event := range events {
		if err := writeEventWithContext(ctx, cmd, event, jsonOutput); err != nil {
			return err
		}
		if event.Type == EventError {
			hasError = true
		}
	}
	if hasError {
		return &runtimeError{err: fmt.Errorf("operation failed")}
	}
	return nil
}

type runtimeError struct {
	err error
}

func (r *runtimeError) Error() string {
	if r.err == nil {
		return "runtime error"
	}
	return r.err.Error()
}

func writeError(cmd *cobra.Command, err error) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		_ = writeEventWithContext(cmd.Context(), cmd, ProgressEvent{
			Type:    EventError,
			Message: err.Error(),
		}, true)
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return &runtimeError{err: err}
}

func writeEvent(cmd *cobra.Command, event ProgressEvent) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return writeEventWithContext(cmd.Context(), cmd, event, jsonOutput)
}

func writeEventWithContext(ctx context.Context, cmd *cobra.Command, event ProgressEvent, jsonOutput bool) error {
	select {
	case <-ctx.Done():
		return &runtimeError{err: ctx.Err()}
	default:
	}
	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		return encoder.Encode(event)
	}
	if event.Message == "" {
		return nil
	}
	w := cmd.OutOrStdout()
	if event.Type == EventError {
		w = cmd.ErrOrStderr()
	}
	_, err := fmt.Fprintln(w, event.Message)
	return err
}
