package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/keepsake/internal/db"
	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/mcp"
	"github.com/hpungsan/keepsake/internal/ops"
	"github.com/hpungsan/keepsake/internal/scheduler"
	"github.com/hpungsan/keepsake/internal/web"
)

// maxStdinBytes bounds bodies piped to create and update.
const maxStdinBytes = 1 << 20

// asFlag identifies the acting user for commands that need one. Flags carry
// parse state, so every command gets its own.
func asFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "as",
		Aliases:  []string{"u"},
		EnvVars:  []string{"KEEPSAKE_USER"},
		Usage:    "Acting user id",
		Required: true,
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(svc *ops.Service, store *db.Store, log zerolog.Logger) *cli.App {
	app := &cli.App{
		Name:    "keepsake",
		Usage:   "Time capsules that open when they are ready",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(svc, store, log),
			mcpCmd(svc),
			createCmd(svc),
			listCmd(svc),
			fetchCmd(svc),
			openCmd(svc),
			withdrawCmd(svc),
			updateCmd(svc),
			hintCmd(svc),
			shareCmd(svc),
			connectCmd(svc),
			disconnectCmd(svc),
			sweepCmd(svc),
			purgeCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the HTTP API with the sweeper and retention jobs.
func serveCmd(svc *ops.Service, store *db.Store, log zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and background sweeper",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-sweep", Usage: "Do not run the background sweeper"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := svc.Config()
			var wg sync.WaitGroup

			if !c.Bool("no-sweep") {
				sweeper := scheduler.NewSweeper(svc, cfg.SweepInterval(), log)
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = sweeper.Run(ctx)
				}()
			}

			if cfg.RetentionDays > 0 {
				retention, err := scheduler.NewRetention(svc, cfg.RetentionCron, cfg.RetentionDays, nil, log)
				if err != nil {
					return outputError(errors.NewValidation(err.Error()))
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = retention.Run(ctx)
				}()
			}

			srv := web.NewServer(svc, store, cfg, log, Version)
			err := web.Run(ctx, srv, log)
			stop()
			wg.Wait()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// mcpCmd serves MCP over stdio explicitly.
func mcpCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools over stdio",
		Action: func(c *cli.Context) error {
			if err := mcp.Run(svc, Version); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// createCmd creates the create command.
func createCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Seal a capsule (reads the body from stdin)",
		Flags: []cli.Flag{
			asFlag(),
			&cli.StringFlag{Name: "to", Usage: "Recipient user id", Required: true},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Capsule title"},
			&cli.StringFlag{Name: "theme", Usage: "Presentation theme"},
			&cli.StringFlag{Name: "unlocks-at", Usage: "Unlock time: unix seconds, RFC3339, or +duration (e.g. +36h, +7d)", Required: true},
			&cli.BoolFlag{Name: "anonymous", Usage: "Hide the sender until reveal"},
			&cli.StringFlag{Name: "reveal-delay", Usage: "Delay after opening before the sender is revealed (e.g. 6h, 0s)"},
			&cli.StringSliceFlag{Name: "hint", Usage: "Identity hint, repeatable up to 3 times"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewValidation("body must be piped via stdin"))
			}
			body, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(errors.NewValidation(err.Error()))
			}

			unlocksAt, err := parseWhen(c.String("unlocks-at"), svc.Now())
			if err != nil {
				return outputError(errors.NewValidationField("unlocks_at", err.Error()))
			}

			input := ops.CreateInput{
				CallerID:    c.String("as"),
				RecipientID: c.String("to"),
				Title:       c.String("title"),
				Body:        body,
				UnlocksAt:   unlocksAt,
				IsAnonymous: c.Bool("anonymous"),
				Hints:       c.StringSlice("hint"),
			}
			if theme := c.String("theme"); theme != "" {
				input.Theme = &theme
			}
			if c.IsSet("reveal-delay") {
				d, err := time.ParseDuration(c.String("reveal-delay"))
				if err != nil {
					return outputError(errors.NewValidationField("reveal_delay_seconds", err.Error()))
				}
				secs := int64(d / time.Second)
				input.RevealDelaySeconds = &secs
			}

			output, err := svc.Create(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List capsules in your inbox or outbox",
		Flags: []cli.Flag{
			asFlag(),
			&cli.StringFlag{Name: "box", Aliases: []string{"b"}, Value: "inbox", Usage: "inbox|outbox"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
			&cli.BoolFlag{Name: "include-withdrawn", Usage: "Outbox only: include withdrawn capsules"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.List(c.Context, ops.ListInput{
				CallerID:         c.String("as"),
				Box:              ops.Box(c.String("box")),
				Status:           c.String("status"),
				Limit:            c.Int("limit"),
				Offset:           c.Int("offset"),
				IncludeWithdrawn: c.Bool("include-withdrawn"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// capsuleAction builds a command that takes one capsule id argument.
func capsuleAction(name, usage string, run func(ctx context.Context, caller, id string) (any, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{asFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewValidationField("id", "is required"))
			}
			output, err := run(c.Context, c.String("as"), c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func fetchCmd(svc *ops.Service) *cli.Command {
	return capsuleAction("fetch", "Show one capsule", func(ctx context.Context, caller, id string) (any, error) {
		return svc.Fetch(ctx, ops.FetchInput{CallerID: caller, ID: id})
	})
}

func openCmd(svc *ops.Service) *cli.Command {
	return capsuleAction("open", "Open a capsule addressed to you", func(ctx context.Context, caller, id string) (any, error) {
		return svc.Open(ctx, ops.OpenInput{CallerID: caller, ID: id})
	})
}

func withdrawCmd(svc *ops.Service) *cli.Command {
	return capsuleAction("withdraw", "Withdraw a sealed capsule you sent", func(ctx context.Context, caller, id string) (any, error) {
		return svc.Withdraw(ctx, ops.WithdrawInput{CallerID: caller, ID: id})
	})
}

func hintCmd(svc *ops.Service) *cli.Command {
	return capsuleAction("hint", "Show the current hint for an anonymous capsule", func(ctx context.Context, caller, id string) (any, error) {
		return svc.Hint(ctx, ops.HintInput{CallerID: caller, ID: id})
	})
}

// updateCmd creates the update command.
func updateCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Edit a sealed capsule (optionally reads a new body from stdin)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			asFlag(),
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "theme", Usage: "New theme (empty clears)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewValidationField("id", "is required"))
			}
			input := ops.UpdateInput{CallerID: c.String("as"), ID: c.Args().First()}

			if stdinHasData() {
				text, err := readStdin(maxStdinBytes)
				if err != nil {
					return outputError(errors.NewValidation(err.Error()))
				}
				if text != "" {
					input.Body = &text
				}
			}
			if c.IsSet("title") {
				title := c.String("title")
				input.Title = &title
			}
			if c.IsSet("theme") {
				theme := c.String("theme")
				input.Theme = &theme
			}

			output, err := svc.Update(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// shareCmd groups share token commands.
func shareCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "share",
		Usage: "Manage public countdown links",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Issue a share token for a sealed capsule",
				ArgsUsage: "<capsule-id>",
				Flags: []cli.Flag{
					asFlag(),
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: "link", Usage: "Share kind label"},
					&cli.StringFlag{Name: "expires-at", Usage: "Expiry: unix seconds, RFC3339, or +duration"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewValidationField("capsule_id", "is required"))
					}
					input := ops.ShareCreateInput{
						CallerID:  c.String("as"),
						CapsuleID: c.Args().First(),
						ShareKind: c.String("kind"),
					}
					if s := c.String("expires-at"); s != "" {
						at, err := parseWhen(s, svc.Now())
						if err != nil {
							return outputError(errors.NewValidationField("expires_at", err.Error()))
						}
						input.ExpiresAt = &at
					}
					output, err := svc.ShareCreate(c.Context, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "list",
				Usage:     "List share tokens for a capsule",
				ArgsUsage: "<capsule-id>",
				Flags:     []cli.Flag{asFlag()},
				Action: func(c *cli.Context) error {
					output, err := svc.ShareList(c.Context, ops.ShareListInput{CallerID: c.String("as"), CapsuleID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a share token",
				ArgsUsage: "<share-id>",
				Flags:     []cli.Flag{asFlag()},
				Action: func(c *cli.Context) error {
					output, err := svc.ShareRevoke(c.Context, ops.ShareRevokeInput{CallerID: c.String("as"), ShareID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "resolve",
				Usage:     "Show the public projection for a token",
				ArgsUsage: "<token>",
				Action: func(c *cli.Context) error {
					output, err := svc.ShareResolve(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

func connectCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect to another user",
		ArgsUsage: "<user-id>",
		Flags:     []cli.Flag{asFlag()},
		Action: func(c *cli.Context) error {
			output, err := svc.Connect(c.Context, ops.ConnectInput{CallerID: c.String("as"), OtherID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

func disconnectCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "disconnect",
		Usage:     "Remove a connection to another user",
		ArgsUsage: "<user-id>",
		Flags:     []cli.Flag{asFlag()},
		Action: func(c *cli.Context) error {
			output, err := svc.Disconnect(c.Context, ops.ConnectInput{CallerID: c.String("as"), OtherID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// sweepCmd runs a single scheduler pass.
func sweepCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Promote due capsules and reveal due senders once",
		Action: func(c *cli.Context) error {
			output, err := svc.Sweep(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete withdrawn capsules",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if withdrawn more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDays(olderThan)
				if err != nil {
					return outputError(errors.NewValidation(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := svc.Purge(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if kErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", kErr.Code, kErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseDays parses "7d" format to days.
func parseDays(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}

// parseWhen resolves an absolute or relative instant to Unix seconds.
// Accepted forms: unix seconds, RFC3339, +<go duration>, +<N>d.
func parseWhen(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("time is required")
	}
	if rel, ok := strings.CutPrefix(s, "+"); ok {
		if strings.HasSuffix(rel, "d") {
			days, err := parseDays(rel)
			if err != nil {
				return 0, err
			}
			return now.Add(time.Duration(days) * 24 * time.Hour).Unix(), nil
		}
		d, err := time.ParseDuration(rel)
		if err != nil {
			return 0, fmt.Errorf("invalid relative time %q", s)
		}
		return now.Add(d).Unix(), nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("expected unix seconds, RFC3339 or +duration, got %q", s)
	}
	return t.Unix(), nil
}
