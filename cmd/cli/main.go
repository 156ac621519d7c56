package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/glizzus/herald/internal/config"
	"github.com/glizzus/herald/internal/datalayer"
	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/schedule"
	"github.com/glizzus/herald/internal/scheduler"
	"github.com/glizzus/herald/internal/timeparse"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

var parser = timeparse.NewParser()

// openService connects to Postgres and builds a scheduler that delivers by logging.
func openService(c *cli.Context) (*scheduler.Service, *pgxpool.Pool, error) {
	pool, err := datalayer.NewPostgresPoolFromEnv(c.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	logger := slog.Default()
	service := scheduler.New(
		repository.NewPostgresEventRepository(pool),
		&messaging.LogDirectory{Logger: logger},
		scheduler.Options{Logger: logger, DefaultTimezone: c.String("timezone")},
	)
	service.RegisterHandler(eventhandler.NewReminderHandler())
	return service, pool, nil
}

func printEvent(service *scheduler.Service, ev repository.ScheduledEvent, now time.Time) {
	next := "-"
	if ev.NextExecuteAt != nil {
		next = timeparse.FormatRelative(*ev.NextExecuteAt, now)
	}
	schedule := string(ev.ScheduleType)
	if ev.CronSchedule != "" {
		schedule += " " + ev.CronSchedule
	}
	fmt.Printf("%s  %-9s  %-20s  %-24s  %s\n", ev.EventID, ev.Status, schedule, next, service.Describe(ev))
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	guildFlag := &cli.StringFlag{
		Name:     "guild-id",
		Usage:    "ID of the guild the events belong to",
		Required: true,
	}

	app := &cli.App{
		Name:        "herald-cli",
		Description: "A development CLI tool for testing Herald without Discord",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "timezone",
				Usage:   "Timezone for parsing times and cron schedules",
				Value:   "UTC",
				EnvVars: []string{"SCHEDULER_DEFAULT_TIMEZONE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "parse",
				Usage:     "Show how a time expression would be scheduled",
				ArgsUsage: "<when>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("Please provide a time expression", 1)
					}
					loc, err := time.LoadLocation(c.String("timezone"))
					if err != nil {
						return cli.Exit("Invalid timezone: "+err.Error(), 1)
					}

					now := time.Now().In(loc)
					parsed, err := parser.Parse(c.Args().First(), now)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Printf("instant:   %s (%s)\n", parsed.Instant.Format(time.RFC1123), timeparse.FormatRelative(parsed.Instant, now))
					fmt.Printf("recurring: %t\n", parsed.Recurring)
					if parsed.Recurring {
						fmt.Printf("cron:      %s\n", parsed.CronExpression)
					}
					fmt.Printf("display:   %s\n", parsed.DisplayText)
					return nil
				},
			},
			{
				Name:  "next",
				Usage: "Show the upcoming run times of a cron expression",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cron", Usage: `Five-field cron expression, e.g. "0 9 * * 1"`, Required: true},
					&cli.IntFlag{Name: "count", Usage: "Number of run times to show", Value: 5},
				},
				Action: func(c *cli.Context) error {
					if err := schedule.ValidateCron(c.String("cron")); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					loc, err := time.LoadLocation(c.String("timezone"))
					if err != nil {
						return cli.Exit("Invalid timezone: "+err.Error(), 1)
					}

					now := time.Now().In(loc)
					times, err := schedule.NextRunTimesAfter(c.String("cron"), now, c.Int("count"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					for _, t := range times {
						fmt.Printf("%s  (%s)\n", t.Format(time.RFC1123), timeparse.FormatRelative(t, now))
					}
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List the scheduled events of a guild",
				Flags: []cli.Flag{
					guildFlag,
					&cli.StringFlag{Name: "status", Usage: "Only events in this status", Value: string(repository.StatusActive)},
					&cli.StringFlag{Name: "creator-id", Usage: "Only events created by this user"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of events", Value: scheduler.DefaultListLimit},
				},
				Action: func(c *cli.Context) error {
					service, pool, err := openService(c)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer pool.Close()

					events, err := service.ListEvents(c.Context, c.String("guild-id"), scheduler.ListFilters{
						CreatorID: c.String("creator-id"),
						Status:    repository.Status(c.String("status")),
						Limit:     c.Int("limit"),
					})
					if err != nil {
						return cli.Exit("Failed to list events: "+err.Error(), 1)
					}

					if len(events) == 0 {
						log.Println("No events found for the specified guild.")
						return nil
					}
					now := time.Now()
					for _, ev := range events {
						printEvent(service, ev, now)
					}
					return nil
				},
			},
			{
				Name:  "add",
				Usage: "Schedule a reminder",
				Flags: []cli.Flag{
					guildFlag,
					&cli.StringFlag{Name: "creator-id", Usage: "ID of the user the reminder is for", Required: true},
					&cli.StringFlag{Name: "channel-id", Usage: "Channel to post in; omit to send a DM"},
					&cli.StringFlag{Name: "when", Usage: `When to run, e.g. "in 10 minutes" or "every day at 9am"`, Required: true},
					&cli.StringFlag{Name: "message", Usage: "Reminder text", Required: true},
					&cli.BoolFlag{Name: "mention", Usage: "Mention the creator in the channel"},
					&cli.IntFlag{Name: "max-executions", Usage: "Stop a recurring reminder after this many runs"},
				},
				Action: func(c *cli.Context) error {
					loc, err := time.LoadLocation(c.String("timezone"))
					if err != nil {
						return cli.Exit("Invalid timezone: "+err.Error(), 1)
					}
					now := time.Now().In(loc)
					parsed, err := parser.Parse(c.String("when"), now)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if !parsed.Recurring && !timeparse.IsFuture(parsed.Instant, now) {
						return cli.Exit("That time is in the past", 1)
					}

					payload, err := eventhandler.EncodePayload(eventhandler.ReminderPayload{
						Message:     c.String("message"),
						MentionUser: c.Bool("mention"),
					})
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}

					opts := scheduler.ScheduleOptions{
						GuildID:   c.String("guild-id"),
						ChannelID: c.String("channel-id"),
						CreatorID: c.String("creator-id"),
						EventType: repository.EventTypeReminder,
						Payload:   payload,
						Timezone:  loc.String(),
						Metadata:  map[string]any{"input": c.String("when"), "createdBy": "cli"},
					}
					if parsed.Recurring {
						opts.ScheduleType = repository.ScheduleCron
						opts.CronSchedule = parsed.CronExpression
					} else {
						opts.ScheduleType = repository.ScheduleOnce
						opts.ExecuteAt = &parsed.Instant
					}
					if n := c.Int("max-executions"); n > 0 {
						opts.MaxExecutions = &n
					}

					service, pool, err := openService(c)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer pool.Close()

					ev, err := service.ScheduleEvent(c.Context, opts)
					if err != nil {
						return cli.Exit("Failed to schedule reminder: "+err.Error(), 1)
					}
					log.Printf("Scheduled %s (%s)", ev.EventID, parsed.DisplayText)
					return nil
				},
			},
			{
				Name:  "cancel",
				Usage: "Cancel an active event",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "ID of the event", Required: true},
					&cli.StringFlag{Name: "requester-id", Usage: "Only cancel if the event belongs to this user"},
				},
				Action: func(c *cli.Context) error {
					service, pool, err := openService(c)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer pool.Close()

					if !service.CancelEvent(c.Context, c.String("id"), c.String("requester-id")) {
						return cli.Exit("No matching active event", 1)
					}
					log.Printf("Cancelled %s", c.String("id"))
					return nil
				},
			},
			{
				Name:  "run-due",
				Usage: "Execute due one-off events once, printing messages instead of sending them",
				Action: func(c *cli.Context) error {
					service, pool, err := openService(c)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					defer pool.Close()

					n := service.ProcessDueEvents(c.Context)
					log.Printf("Executed %d due events", n)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
