// Package ctl implements hootctl, the operator command line for a Hoot
// deployment. It talks to the database and object store directly and needs
// the same configuration as the server.
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/reconcile"
)

// Backend is the slice of the server app the commands drive.
type Backend interface {
	Migrate(ctx context.Context) error
	Reconcile(ctx context.Context, minAge time.Duration, remove bool) (*reconcile.Report, error)
	SetPassword(ctx context.Context, email, password string) error
	SyncSubscriptions(ctx context.Context) (int, error)
	PatreonAuthURL(state string) string
	Close() error
}

// Opener builds a Backend from the config file path given on the command
// line, which may be empty.
type Opener func(ctx context.Context, configPath string) (Backend, error)

type Runner struct {
	open         Opener
	out          io.Writer
	readPassword func(fd int) ([]byte, error)
	stdinFd      int
}

func NewRunner(open Opener, out io.Writer) *Runner {
	return &Runner{
		open:         open,
		out:          out,
		readPassword: term.ReadPassword,
		stdinFd:      int(os.Stdin.Fd()),
	}
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// withBackend opens the backend for the duration of fn.
func (r *Runner) withBackend(ctx context.Context, cmd *cli.Command, fn func(Backend) error) error {
	b, err := r.open(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return fn(b)
}

// Command is the hootctl root command.
func (r *Runner) Command() *cli.Command {
	return &cli.Command{
		Name:   "hootctl",
		Usage:  "Administer a Hoot deployment",
		Writer: r.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (JSON or TOML)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations",
				Action: r.Migrate,
			},
			{
				Name:  "reconcile",
				Usage: "Report stored objects that no track refers to",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "delete",
						Usage: "Delete the orphaned objects",
					},
					&cli.DurationFlag{
						Name:  "min-age",
						Usage: "Ignore objects modified more recently than this",
						Value: reconcile.DefaultMinAge,
					},
				},
				Action: r.Reconcile,
			},
			{
				Name:  "user",
				Usage: "Manage user accounts",
				Commands: []*cli.Command{
					{
						Name:      "passwd",
						Usage:     "Set the password of the account registered with an email",
						ArgsUsage: "<email>",
						Action:    r.SetPassword,
					},
				},
			},
			{
				Name:  "patreon",
				Usage: "Patreon membership maintenance",
				Commands: []*cli.Command{
					{
						Name:   "sync",
						Usage:  "Refresh memberships that are due now",
						Action: r.SyncSubscriptions,
					},
					{
						Name:  "auth-url",
						Usage: "Print the URL that starts linking a Patreon account",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "state",
								Usage: "Opaque value echoed back to the redirect URL (random when empty)",
							},
						},
						Action: r.AuthURL,
					},
				},
			},
		},
	}
}

func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	return r.withBackend(ctx, cmd, func(b Backend) error {
		if err := b.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		r.printf("Migrations applied\n")
		return nil
	})
}

func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	remove := cmd.Bool("delete")
	return r.withBackend(ctx, cmd, func(b Backend) error {
		rep, err := b.Reconcile(ctx, cmd.Duration("min-age"), remove)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		r.printReport(rep, remove)
		return nil
	})
}

func (r *Runner) printReport(rep *reconcile.Report, removed bool) {
	for _, o := range rep.Orphans {
		r.printf("%s\t%d\n", o.Key, o.Size)
	}
	r.printf("Scanned %d objects: %d referenced, %d too recent, %d orphaned (%d bytes)\n",
		rep.Scanned, rep.Referenced, rep.Skipped, len(rep.Orphans), rep.OrphanedBytes())
	if removed {
		r.printf("Deleted %d, failed %d\n", rep.Deleted, rep.Failed)
	}
}

func (r *Runner) SetPassword(ctx context.Context, cmd *cli.Command) error {
	email := cmd.Args().First()
	if email == "" || cmd.Args().Len() > 1 {
		return fmt.Errorf("usage: hootctl user passwd <email>")
	}

	password, err := r.promptPassword()
	if err != nil {
		return err
	}

	return r.withBackend(ctx, cmd, func(b Backend) error {
		if err := b.SetPassword(ctx, email, password); err != nil {
			return fmt.Errorf("setting password: %w", err)
		}
		r.printf("Password updated for %s\n", email)
		return nil
	})
}

func (r *Runner) promptPassword() (string, error) {
	r.printf("New password: ")
	first, err := r.readPassword(r.stdinFd)
	r.printf("\n")
	if err != nil {
		return "", err
	}

	r.printf("Repeat password: ")
	second, err := r.readPassword(r.stdinFd)
	r.printf("\n")
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", common.ErrPasswordMismatch
	}
	return string(first), nil
}

func (r *Runner) SyncSubscriptions(ctx context.Context, cmd *cli.Command) error {
	return r.withBackend(ctx, cmd, func(b Backend) error {
		n, err := b.SyncSubscriptions(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		r.printf("Synced %d memberships\n", n)
		return nil
	})
}

func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	state := cmd.String("state")
	if state == "" {
		var err error
		if state, err = common.MakeRandHexString(16); err != nil {
			return err
		}
	}
	return r.withBackend(ctx, cmd, func(b Backend) error {
		r.printf("%s\n", b.PatreonAuthURL(state))
		return nil
	})
}
