package gateway

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"staten/internal/clients"
	"staten/internal/telemetry"
)

// Traced wraps g so that every command runs inside its own span.
func Traced(g Gateway) Gateway {
	return &traced{next: g}
}

type traced struct {
	next Gateway
}

func start(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("staten.command", command))
	return telemetry.StartSpan(ctx, "gateway."+command, trace.WithAttributes(attrs...))
}

func appAttrs(app string, client clients.Client) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("staten.app", app),
		attribute.String("staten.client", client.String()),
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *traced) Install(ctx context.Context, app string, client clients.Client, env map[string]string) error {
	ctx, span := start(ctx, "install", append(appAttrs(app, client), attribute.Int("staten.env_count", len(env)))...)
	err := t.next.Install(ctx, app, client, env)
	finish(span, err)
	return err
}

func (t *traced) Uninstall(ctx context.Context, app string, client clients.Client) error {
	ctx, span := start(ctx, "uninstall", appAttrs(app, client)...)
	err := t.next.Uninstall(ctx, app, client)
	finish(span, err)
	return err
}

func (t *traced) IsInstalled(ctx context.Context, app string, client clients.Client) (bool, error) {
	ctx, span := start(ctx, "is_installed", appAttrs(app, client)...)
	installed, err := t.next.IsInstalled(ctx, app, client)
	span.SetAttributes(attribute.Bool("staten.installed", installed))
	finish(span, err)
	return installed, err
}

func (t *traced) GetAppEnv(ctx context.Context, app string, client clients.Client) (map[string]string, error) {
	ctx, span := start(ctx, "get_app_env", appAttrs(app, client)...)
	env, err := t.next.GetAppEnv(ctx, app, client)
	finish(span, err)
	return env, err
}

func (t *traced) SaveAppEnv(ctx context.Context, app string, client clients.Client, env map[string]string) error {
	ctx, span := start(ctx, "save_app_env", append(appAttrs(app, client), attribute.Int("staten.env_count", len(env)))...)
	err := t.next.SaveAppEnv(ctx, app, client, env)
	finish(span, err)
	return err
}

func (t *traced) InstallBootstrapApp(ctx context.Context, client clients.Client) error {
	ctx, span := start(ctx, "install_bootstrap_app", attribute.String("staten.client", client.String()))
	err := t.next.InstallBootstrapApp(ctx, client)
	finish(span, err)
	return err
}

func (t *traced) UninstallBootstrapApp(ctx context.Context, client clients.Client) error {
	ctx, span := start(ctx, "uninstall_bootstrap_app", attribute.String("staten.client", client.String()))
	err := t.next.UninstallBootstrapApp(ctx, client)
	finish(span, err)
	return err
}

func (t *traced) CheckHostInstalled(ctx context.Context, client clients.Client) (bool, error) {
	ctx, span := start(ctx, "check_host_installed", attribute.String("staten.client", client.String()))
	installed, err := t.next.CheckHostInstalled(ctx, client)
	finish(span, err)
	return installed, err
}

func (t *traced) CheckOnboardingActionCompleted(ctx context.Context) (bool, error) {
	ctx, span := start(ctx, "check_onboarding_completed")
	done, err := t.next.CheckOnboardingActionCompleted(ctx)
	span.SetAttributes(attribute.Bool("staten.completed", done))
	finish(span, err)
	return done, err
}

func (t *traced) ResetOnboardingCompleted(ctx context.Context) error {
	ctx, span := start(ctx, "reset_onboarding_completed")
	err := t.next.ResetOnboardingCompleted(ctx)
	finish(span, err)
	return err
}

func (t *traced) RestartHostApp(ctx context.Context, client clients.Client) error {
	ctx, span := start(ctx, "restart_host_app", attribute.String("staten.client", client.String()))
	err := t.next.RestartHostApp(ctx, client)
	finish(span, err)
	return err
}

func (t *traced) OpenExternalURL(ctx context.Context, url string) error {
	ctx, span := start(ctx, "open_external_url", attribute.String("url.full", url))
	err := t.next.OpenExternalURL(ctx, url)
	finish(span, err)
	return err
}

func (t *traced) GetAppStatuses(ctx context.Context, client clients.Client) (Statuses, error) {
	ctx, span := start(ctx, "get_app_statuses", attribute.String("staten.client", client.String()))
	statuses, err := t.next.GetAppStatuses(ctx, client)
	finish(span, err)
	return statuses, err
}
