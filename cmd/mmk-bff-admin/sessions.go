package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-bff/config"
	"github.com/target/mmk-bff/internal/adapters/reaper"
	"github.com/target/mmk-bff/internal/bootstrap"
	"github.com/target/mmk-bff/internal/domain/session"
)

var errMemoryBackend = errors.New("the memory session store lives inside the service process; the admin CLI cannot reach it")

type sessionFilterOptions struct {
	Filter  session.Filter
	Timeout time.Duration
}

type listOptions struct {
	sessionFilterOptions
	JSON bool
}

type revokeOptions struct {
	sessionFilterOptions
	DryRun bool
	Yes    bool
}

func bindFilterFlags(fs *flag.FlagSet, opts *sessionFilterOptions) {
	fs.StringVar(&opts.Filter.SubjectID, "sub", "", "Subject (sub claim) to match")
	fs.StringVar(&opts.Filter.SessionID, "sid", "", "IdP session id (sid claim) to match")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
}

func validateFilterOptions(opts sessionFilterOptions) error {
	if err := opts.Filter.Validate(); err != nil {
		return errors.New("--sub or --sid is required")
	}
	if opts.Timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return nil
}

func parseListFlags(args []string) (listOptions, error) {
	fs := flag.NewFlagSet("sessions-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listOptions
	bindFilterFlags(fs, &opts.sessionFilterOptions)
	fs.BoolVar(&opts.JSON, "json", false, "Print sessions as JSON")

	if err := fs.Parse(args); err != nil {
		return listOptions{}, err
	}
	if err := validateFilterOptions(opts.sessionFilterOptions); err != nil {
		return listOptions{}, err
	}
	return opts, nil
}

func parseRevokeFlags(args []string) (revokeOptions, error) {
	fs := flag.NewFlagSet("sessions-revoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts revokeOptions
	bindFilterFlags(fs, &opts.sessionFilterOptions)
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Show matching sessions without revoking them")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return revokeOptions{}, err
	}
	if err := validateFilterOptions(opts.sessionFilterOptions); err != nil {
		return revokeOptions{}, err
	}
	return opts, nil
}

// withServices connects the configured session backend and wires the service container.
func withServices(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, bootstrap.ServiceContainer) error,
) error {
	if cmdCtx.Config.SessionStore.Backend == config.SessionBackendMemory {
		return errMemoryBackend
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, redisClient, err := bootstrap.ConnectSessionInfra(&cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := bootstrap.CloseSessionInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	return f(ctx, services)
}

func runSessionsList(cmdCtx *commandContext, args []string) error {
	opts, err := parseListFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		sessions, err := svc.Sessions.Store.GetMany(ctx, opts.Filter)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if opts.JSON {
			return renderSessionsJSON(cmdCtx.Out, sessions)
		}
		return renderSessionsTable(cmdCtx.Out, sessions)
	})
}

func runSessionsRevoke(cmdCtx *commandContext, args []string) error {
	opts, err := parseRevokeFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		sessions, err := svc.Sessions.Store.GetMany(ctx, opts.Filter)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(sessions) == 0 {
			return writeln(cmdCtx.Out, "No matching sessions.")
		}
		if err := renderSessionsTable(cmdCtx.Out, sessions); err != nil {
			return err
		}
		if opts.DryRun {
			return writef(cmdCtx.Out, "Dry run: %d session(s) would be revoked.\n", len(sessions))
		}

		prompt := fmt.Sprintf("About to revoke %d session(s).", len(sessions))
		if err := confirmAction(cmdCtx, prompt, opts.Yes); err != nil {
			return err
		}
		removed, err := svc.Logout.Revoke(ctx, opts.Filter)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return writef(cmdCtx.Out, "Revoked %d session(s).\n", removed)
	})
}

func runSessionsCleanup(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("sessions-cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}

	return withServices(cmdCtx, *timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		runner := reaper.NewRunner(reaper.RunnerOptions{
			Cleaner:  svc.Sessions.Cleaner,
			Config:   cmdCtx.Config.SessionCleanup,
			Logger:   cmdCtx.Logger,
			Sessions: svc.Observability.Sessions,
		})
		removed, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("cleanup expired sessions: %w", err)
		}
		return writef(cmdCtx.Out, "Removed %d expired session(s).\n", removed)
	})
}

// sessionView omits the sealed ticket.
type sessionView struct {
	Key       string     `json:"key"`
	SubjectID string     `json:"subject_id"`
	SessionID string     `json:"session_id,omitempty"`
	Created   time.Time  `json:"created"`
	Renewed   time.Time  `json:"renewed"`
	Expires   *time.Time `json:"expires,omitempty"`
}

func toViews(sessions []session.Session) []sessionView {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			Key:       s.Key,
			SubjectID: s.SubjectID,
			SessionID: s.SessionID,
			Created:   s.Created,
			Renewed:   s.Renewed,
			Expires:   s.Expires,
		})
	}
	return views
}

func renderSessionsJSON(w io.Writer, sessions []session.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toViews(sessions))
}

func renderSessionsTable(w io.Writer, sessions []session.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "KEY\tSUBJECT\tSID\tCREATED\tRENEWED\tEXPIRES"); err != nil {
		return err
	}
	for _, v := range toViews(sessions) {
		expires := "never"
		if v.Expires != nil {
			expires = v.Expires.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortKey(v.Key),
			v.SubjectID,
			valueOrDash(v.SessionID),
			v.Created.UTC().Format(time.RFC3339),
			v.Renewed.UTC().Format(time.RFC3339),
			expires,
		); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "\nTotal: %d\n", len(sessions))
}

// shortKey keeps enough of the key to correlate with logs without printing a usable handle.
func shortKey(key string) string {
	if len(key) <= 12 {
		return key
	}
	return key[:12] + "…"
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
