// Package main is the entry point for the courier command, which sends a
// batch of messages described by a YAML manifest.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/shineum/courier/internal/config"
	"github.com/shineum/courier/internal/courier"
	"github.com/shineum/courier/internal/manifest"
	"github.com/shineum/courier/internal/render"
	smtptls "github.com/shineum/courier/internal/tls"
	"github.com/shineum/courier/internal/transport"
	"github.com/shineum/courier/internal/transport/graph"
	"github.com/shineum/courier/internal/transport/resend"
	"github.com/shineum/courier/internal/transport/sendgrid"
	"github.com/shineum/courier/internal/transport/ses"
	"github.com/shineum/courier/internal/transport/smtp"
	"github.com/shineum/courier/internal/transport/stdout"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	messagesPath := flag.String("messages", "-", "path to the message manifest, or - for stdin")
	dryRun := flag.Bool("dry-run", false, "print messages to stdout instead of sending them")
	raw := flag.Bool("raw", false, "with the stdout transport, print full MIME documents")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.Transport = config.TransportStdout
	}
	if *raw {
		cfg.Stdout.Raw = true
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tr, err := selectTransport(ctx, cfg, os.Stdout)
	if err != nil {
		slog.Error("failed to create transport", "transport", cfg.Transport, "error", err)
		os.Exit(1)
	}

	entries, err := readManifest(*messagesPath, cfg.Defaults)
	if err != nil {
		slog.Error("failed to load messages", "path", *messagesPath, "error", err)
		os.Exit(1)
	}

	slog.Info("starting courier",
		"transport", tr.Name(),
		"messages", len(entries),
		"concurrency", cfg.Dispatch.Concurrency,
		"dry_run", *dryRun,
	)

	d := courier.New(tr, newRenderer(cfg.Templates),
		courier.WithConcurrency(cfg.Dispatch.Concurrency),
	)

	if failed := dispatch(ctx, d, entries); failed > 0 {
		slog.Error("some messages were not sent", "failed", failed, "total", len(entries))
		os.Exit(1)
	}

	slog.Info("all messages sent", "total", len(entries))
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with the specified level and
// format (json or text).
func setupLogger(w io.Writer, level, format string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// selectTransport creates the delivery backend named by cfg.Transport. The
// stdout transport prints to out.
func selectTransport(ctx context.Context, cfg *config.Config, out io.Writer) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		tlsConfig, err := smtptls.ClientConfig(smtptls.ClientOptions{
			ServerName:         cfg.SMTP.Host,
			CAFile:             cfg.SMTP.CAFile,
			CertFile:           cfg.SMTP.ClientCertFile,
			KeyFile:            cfg.SMTP.ClientKeyFile,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using SMTP transport",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"tls_mode", cfg.SMTP.TLSMode,
			"auth_enabled", cfg.AuthEnabled(),
			"client_cert", cfg.SMTP.ClientCertFile != "",
		)
		return smtp.New(smtp.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			Auth:      cfg.SMTP.Auth,
			TLSMode:   cfg.SMTP.TLSMode,
			TLSConfig: tlsConfig,
			LocalName: cfg.SMTP.LocalName,
			Timeout:   cfg.SMTP.Timeout,
		})

	case config.TransportSES:
		slog.Info("using AWS SES transport", "region", cfg.SES.Region)
		return ses.New(ctx, ses.Config{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})

	case config.TransportGraph:
		slog.Info("using Microsoft Graph transport", "sender", cfg.Graph.Sender)
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		})

	case config.TransportResend:
		slog.Info("using Resend transport")
		return resend.New(resend.Config{APIKey: cfg.Resend.APIKey})

	case config.TransportSendGrid:
		slog.Info("using SendGrid transport")
		return sendgrid.New(sendgrid.Config{APIKey: cfg.SendGrid.APIKey})

	case config.TransportStdout:
		slog.Info("using stdout transport", "raw", cfg.Stdout.Raw)
		return stdout.NewWithWriter(out, cfg.Stdout.Raw), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// newRenderer returns a template renderer, or nil when the template
// directory does not exist. Messages that name a template then fail with a
// template error while literal bodies still go out.
func newRenderer(cfg config.TemplatesConfig) courier.Renderer {
	r, err := render.NewFromDir(cfg.Dir, render.Config{
		Layout:   cfg.Layout,
		Sanitize: cfg.Sanitize,
	})
	if err != nil {
		slog.Warn("templates disabled", "dir", cfg.Dir, "error", err)
		return nil
	}
	return r
}

// readManifest loads the manifest at path, or from stdin when path is "-".
// Relative attachment paths resolve against the manifest's directory.
func readManifest(path string, defaults config.DefaultsConfig) ([]manifest.Entry, error) {
	md := manifest.Defaults{
		From:         defaults.From,
		Organization: defaults.Organization,
		ReplyTo:      defaults.ReplyTo,
	}

	if path == "-" {
		return manifest.Load(os.Stdin, ".", md)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return manifest.Load(f, filepath.Dir(path), md)
}

// dispatch sends every valid manifest entry and returns how many messages
// were not sent, counting entries that could not be built.
func dispatch(ctx context.Context, d *courier.Dispatcher, entries []manifest.Entry) int {
	failed := 0
	var msgs []*courier.Message
	for i, e := range entries {
		if e.Err != nil {
			failed++
			slog.Warn("message skipped", "index", i, "error", e.Err, "kind", courier.KindOf(e.Err).String())
			continue
		}
		msgs = append(msgs, e.Message)
	}

	for _, r := range d.SendBatch(ctx, msgs) {
		if r.Err != nil {
			failed++
		}
	}
	return failed
}
