// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/regroup/internal/ui"
)

// setupCommand handles database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create a config file if missing, then initialize the database and run migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.SetupDatabase,
	}
}

// startCommand plans an operation, creates the replacement group and sends batches.
func startCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start migrating a group into a new group",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "Source group id",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "initiator",
				Aliases:  []string{"i"},
				Usage:    "Participant id of the admin requesting the migration",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Name of the new group",
			},
			&cli.StringFlag{
				Name:  "bot",
				Usage: "Participant id of the bot account (defaults to messaging.bot_id)",
			},
			&cli.StringSliceFlag{
				Name:    "member",
				Aliases: []string{"m"},
				Usage:   "Source group member, repeatable; read from the gateway when omitted",
			},
			&cli.StringSliceFlag{
				Name:  "admin",
				Usage: "Source group admin, repeatable",
			},
			&cli.StringSliceFlag{
				Name:    "exclude",
				Aliases: []string{"x"},
				Usage:   "Member to leave out, repeatable",
			},
			&cli.BoolFlag{
				Name:  "detach",
				Usage: "Return after the group is created; batches resume with 'regroup serve'",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Follow the operation in the terminal monitor",
			},
		},
		Action: r.StartOperation,
	}
}

// excludeCommand records members to leave out of the next operation of a group.
func excludeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "exclude",
		Usage:     "Exclude members from the next migration of a source group",
		ArgsUsage: "<participant>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "Source group id",
				Required: true,
			},
		},
		Action: r.Exclude,
	}
}

// statusCommand prints one operation.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the status of an operation",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// listCommand prints all operations.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List operations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "archived",
				Aliases: []string{"a"},
				Usage:   "Include completed and failed operations",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.List,
	}
}

// inviteCommand sends the next batch of an operation by hand.
func inviteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "invite",
		Usage: "Send the next invitation batch of an operation",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "retry-rejected",
				Usage: "Make rejected members pending again first",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Keep sending batches until every member was invited",
			},
		},
		Action: r.Invite,
	}
}

// completeCommand archives an operation.
func completeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "complete",
		Usage: "Close an operation and archive it",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Record the operation as failed",
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "Closing note added to the operation log",
			},
		},
		Action: r.Complete,
	}
}

// reportCommand exports an operation.
func reportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Export an operation as csv, markdown, text or json",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "csv, markdown, text or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path; csv writes <output>_members.csv and <output>_operation.json, markdown writes <output>/README.md",
			},
		},
		Action: r.Report,
	}
}

// serveCommand runs the HTTP API and resumes interrupted operations.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the operator API and join event webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// monitorCommand returns the top-level TUI command for watching operations.
func monitorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive operation monitor",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "archived",
				Aliases: []string{"a"},
				Usage:   "Include archived operations",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Refresh interval",
				Value: ui.DefaultInterval,
			},
		},
		Action: r.Monitor,
	}
}
