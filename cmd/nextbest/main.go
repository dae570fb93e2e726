// Command nextbest is the local interactive application: a readline shell over an
// embedded (or shared Postgres) store.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/and161185/nextbest/internal/authz"
	"github.com/and161185/nextbest/internal/config"
	"github.com/and161185/nextbest/internal/limiter"
	"github.com/and161185/nextbest/internal/logging"
	"github.com/and161185/nextbest/internal/service"
	"github.com/and161185/nextbest/internal/session"
	"github.com/and161185/nextbest/internal/shell"
	"github.com/and161185/nextbest/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", "", "config file (YAML)")
	dbPath := flag.String("db", "", "SQLite database file (overrides database.path)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if *dbPath != "" {
		cfg.Database.Driver, cfg.Database.Path = "sqlite", *dbPath
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, flag.Args()); err != nil {
		logger.Error("nextbest", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run wires the store, the gate and the shell. Script files given as arguments are
// executed before the prompt appears.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, scripts []string) error {
	store, err := storage.Open(ctx, cfg.Database, limiter.Settings{
		Window:   cfg.Auth.LoginWindow,
		MaxFails: cfg.Auth.MaxFailures,
		BlockFor: cfg.Auth.BlockFor,
	})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	authSvc := service.NewAuthService(store.Accounts, service.AuthConfig{
		SignKey:    []byte(cfg.Auth.JWTKey),
		AccessTTL:  cfg.Auth.AccessTTL,
		Iterations: cfg.Auth.Iterations,
	}, store.Limiter, logger.Named("auth"))
	libSvc := service.NewLibraryService(store.Library, logger.Named("library"))

	z, err := authz.New()
	if err != nil {
		return err
	}
	gate, err := session.NewGate(ctx, authSvc, z, "local", logger.Named("session"))
	if err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	opts := shell.Options{
		Out:     os.Stdout,
		Timeout: cfg.Shell.CommandTimeout,
		Log:     logger.Named("shell"),
	}

	if !interactive {
		// piped input: passwords must be given inline
		sh := shell.New(gate, libSvc, opts)
		for _, f := range scripts {
			if err := runScript(ctx, sh, f); err != nil {
				return err
			}
		}
		return runLines(ctx, sh, os.Stdin)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     cfg.Shell.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	opts.Out = rl.Stdout()
	opts.Password = func(prompt string) (string, error) {
		b, err := rl.ReadPassword(prompt)
		return string(b), err
	}
	sh := shell.New(gate, libSvc, opts)

	for _, f := range scripts {
		if err := runScript(ctx, sh, f); err != nil {
			return err
		}
	}

	fmt.Fprintf(rl.Stdout(), "NextBest %s (%s). Type 'help' for commands.\n", version, buildDate)
	if gate.State() == session.StateBootstrap {
		fmt.Fprintln(rl.Stdout(), "No accounts yet: run 'bootstrap <username>' to create the administrator.")
	}
	return sh.Run(ctx, rl)
}

func runScript(ctx context.Context, sh *shell.Shell, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return runLines(ctx, sh, f)
}

// runLines executes one command per line, printing errors and going on.
func runLines(ctx context.Context, sh *shell.Shell, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := sh.Exec(ctx, sc.Text()); err != nil {
			if errors.Is(err, shell.ErrQuit) {
				return nil
			}
			sh.PrintError(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return sc.Err()
}
