// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bodaay/stager/internal/config"
	"github.com/bodaay/stager/internal/logging"
	"github.com/bodaay/stager/pkg/stager"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Config    string
	EnvFile   string
	JSONOut   bool
	Quiet     bool
	Verbose   bool
	LogFile   string
	LogLevel  string
	Insecure  bool
	Timeout   string
	RedisLock string
}

// errFailed reports that at least one target failed. Its details were
// already printed.
var errFailed = errors.New("one or more targets failed")

// usageError marks bad invocations, which exit with status 2.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: errors.Newf(format, args...)}
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		return 2
	case strings.HasPrefix(err.Error(), "unknown command"):
		return 2
	default:
		return 1
	}
}

// app carries what every command needs once the root pre-run has loaded
// configuration and logging.
type app struct {
	ro      *RootOpts
	cfg     *config.Config
	log     *zap.Logger
	fs      afero.Fs
	out     io.Writer
	errOut  io.Writer
	cleanup func()

	// redis is shared by every target of a run.
	redis *stager.RedisLocker
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root, a := newRootCmd(version, os.Stdout, os.Stderr, afero.NewOsFs())
	defer a.close()

	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errFailed) {
		fmt.Fprintln(a.errOut, "error:", err)
	}
	return err
}

func newRootCmd(version string, out, errOut io.Writer, fsys afero.Fs) (*cobra.Command, *app) {
	ro := &RootOpts{}
	a := &app{ro: ro, fs: fsys, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "stager",
		Short:         "Fetch and stage the Food-101 dataset and Core ML models",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	// Global flags
	pf := root.PersistentFlags()
	pf.StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	pf.StringVar(&ro.EnvFile, "env-file", "", "Load environment variables from this file (default ./.env when present)")
	pf.BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events and results")
	pf.BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (results only)")
	pf.BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	pf.StringVar(&ro.LogFile, "log-file", "", "Write logs to file (in addition to stderr)")
	pf.StringVar(&ro.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&ro.Insecure, "insecure", false, "Skip TLS certificate verification (broken mirrors only)")
	pf.StringVar(&ro.Timeout, "timeout", "", "Abandon an attempt after this long without data, e.g. 30s or 5m")
	pf.StringVar(&ro.RedisLock, "redis-lock", "", "Coordinate runs through Redis at host:port instead of lock files")

	root.AddCommand(newDatasetCmd(a))
	root.AddCommand(newModelsCmd(a))
	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newGuideCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newVersionCmd(a, version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root, a
}

// annotCreatesConfig marks commands whose --config names a file that may
// not exist yet.
const annotCreatesConfig = "stager/creates-config"

// setup loads .env, the config file and the logger. It runs before every
// command.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadEnv(a.ro.EnvFile); err != nil {
		return err
	}
	path := a.ro.Config
	if cmd.Annotations[annotCreatesConfig] != "" {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = a.ro.LogLevel
	}
	log, cleanup, err := logging.Setup(logging.Options{
		Level:   level,
		File:    a.ro.LogFile,
		Verbose: a.ro.Verbose,
		Quiet:   a.ro.Quiet || a.ro.JSONOut,
	})
	if err != nil {
		return &usageError{err: err}
	}
	a.log = log
	a.cleanup = cleanup
	log.Debug("configuration loaded",
		zap.String("dataset_root", cfg.DatasetRoot),
		zap.String("models_dir", cfg.ModelsDir),
		zap.Bool("insecure", cfg.InsecureSkipVerify || a.ro.Insecure))
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && a.log != nil {
			a.log.Debug("close redis client", zap.Error(err))
		}
		a.redis = nil
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// settings merges config and global flags into stager settings.
func (a *app) settings() stager.Settings {
	s := stager.DefaultSettings()
	c := a.cfg
	s.Transport.Timeout = defaultStr(a.ro.Timeout, c.Timeout)
	s.Transport.InsecureSkipVerify = a.ro.Insecure || c.InsecureSkipVerify
	s.Transport.UserAgent = defaultStr(c.UserAgent, s.Transport.UserAgent)
	s.BackoffInitial = defaultStr(c.BackoffInitial, s.BackoffInitial)
	s.BackoffMax = defaultStr(c.BackoffMax, s.BackoffMax)
	if c.PreviewLimit > 0 {
		s.PreviewLimit = c.PreviewLimit
	}
	s.LockStale = defaultStr(c.LockStale, s.LockStale)
	s.Fs = a.fs
	s.Logger = a.log

	if addr := defaultStr(a.ro.RedisLock, c.RedisLock); addr != "" {
		if a.redis == nil {
			ttl, err := time.ParseDuration(s.LockStale)
			if err != nil {
				ttl = 0
			}
			a.redis = stager.NewRedisLocker(addr, ttl)
		}
		s.Locker = a.redis
	}
	if s.Transport.InsecureSkipVerify {
		a.log.Warn("TLS certificate verification is disabled")
	}
	return s
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func defaultStr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
