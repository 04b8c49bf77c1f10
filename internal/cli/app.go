package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/config"
	"github.com/kashyapanjali/periskope/internal/directory"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
	"github.com/kashyapanjali/periskope/internal/notify"
	chatsync "github.com/kashyapanjali/periskope/internal/sync"
	"github.com/kashyapanjali/periskope/internal/workspace"
)

// app is what a command needs once flags, config and the stored token
// have been resolved.
type app struct {
	profile string
	cfg     *config.Config
	log     *zap.Logger
	client  *client.Client
	out     *OutputFormatter
}

func (o *RootOptions) open(cmd *cobra.Command) (*app, error) {
	profile := workspace.Resolve(o.Profile)
	if err := workspace.ValidateName(profile); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid profile", err)
	}
	if err := workspace.EnsureDir(profile); err != nil {
		return nil, WrapExitError(ExitCommandError, "prepare profile directory", err)
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, WrapExitError(ExitCommandError, "load .env", err)
	}
	cfg, err := config.LoadOrDefault(workspace.ConfigPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, WrapExitError(ExitCommandError, "apply environment", err)
	}

	log, err := logging.New(workspace.LogPath(profile, "periskope"), "periskope", logging.Options{
		Debug:       o.Verbose,
		QuietStderr: !o.Verbose,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open log", err)
	}

	token, err := workspace.LoadToken(workspace.TokenPath(profile))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read token", err)
	}
	baseURL := o.BaseURL
	if baseURL == "" {
		baseURL = cfg.Client.BaseURL
	}
	c, err := client.New(baseURL,
		client.WithToken(token),
		client.WithTimeout(cfg.Client.Timeout.Duration),
		client.WithLogger(log),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid daemon URL", err)
	}

	return &app{
		profile: profile,
		cfg:     cfg,
		log:     log,
		client:  c,
		out:     &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

func (a *app) tokenPath() string {
	return workspace.TokenPath(a.profile)
}

// requireToken fails early when no sign-in is stored for the profile.
func (a *app) requireToken() error {
	if a.client.Token() == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("not signed in to profile %q; run periskope login", a.profile))
	}
	return nil
}

// directory creates a Directory whose cooldown continues from the profile's
// last add-user attempt.
func (a *app) directory() *directory.Directory {
	opts := directory.OptionsFrom(a.cfg.Directory)
	opts.LastAttempt = workspace.LoadStamp(workspace.AddUserStampPath(a.profile))
	return directory.New(a.client, opts, a.log)
}

// addUser runs AddUser and records the attempt for later commands.
func (a *app) addUser(ctx context.Context, d *directory.Directory, email, fullName, phone string) (*domain.User, error) {
	before := d.LastAttempt()
	u, err := d.AddUser(ctx, email, fullName, phone)
	if last := d.LastAttempt(); !last.Equal(before) {
		if serr := workspace.SaveStamp(workspace.AddUserStampPath(a.profile), last); serr != nil {
			a.log.Warn("record add-user attempt", zap.Error(serr))
		}
	}
	return u, err
}

// session bootstraps a Synchronizer for the stored sign-in.
// Notifications go to the log and, when b is set, to the bus.
func (a *app) session(ctx context.Context, b *bus.Bus) (*chatsync.Synchronizer, error) {
	if err := a.requireToken(); err != nil {
		return nil, err
	}
	s := chatsync.New(chatsync.ClientAccess{Client: a.client}, notify.NewCenter(b, a.log), b, a.log)
	if err := s.Bootstrap(ctx); err != nil {
		if errors.Is(err, chatsync.ErrUnauthenticated) {
			return nil, WrapExitError(ExitCommandError, "session expired; run periskope login", err)
		}
		return nil, WrapExitError(ExitFailure, "start session", err)
	}
	return s, nil
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
