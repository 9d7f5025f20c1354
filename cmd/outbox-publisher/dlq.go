package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gearledger-backend/pkg/db/models"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/outbox"
	"github.com/angelmondragon/gearledger-backend/pkg/pagination"
)

const dlqUsage = `usage: outbox-publisher dlq <list|replay> [flags]

  list   [-reason max_attempts|non_retryable] [-limit n] [-cursor token]
  replay -event <event id>
`

type dlqAdmin interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, eventID uuid.UUID) error
}

// runDLQ serves the operator subcommands for inspecting and replaying dead
// letters. Replayed events are picked up by the next relay drain.
func runDLQ(ctx context.Context, args []string, store dlqAdmin, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing dlq command\n%s", dlqUsage)
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("dlq list", flag.ContinueOnError)
		fs.SetOutput(out)
		reason := fs.String("reason", "", "filter by error reason")
		limit := fs.Int("limit", pagination.DefaultLimit, "page size")
		cursor := fs.String("cursor", "", "next_cursor from a previous page")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		filter := outbox.DLQFilter{Limit: *limit}
		if *reason != "" {
			parsed, err := enums.ParseOutboxDLQErrorReason(*reason)
			if err != nil {
				return err
			}
			filter.Reason = parsed
		}
		parsedCursor, err := pagination.Parse(*cursor)
		if err != nil {
			return err
		}
		filter.Cursor = parsedCursor
		return listDLQ(ctx, store, filter, out)
	case "replay":
		fs := flag.NewFlagSet("dlq replay", flag.ContinueOnError)
		fs.SetOutput(out)
		eventID := fs.String("event", "", "outbox event id to requeue")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		id, err := uuid.Parse(*eventID)
		if err != nil {
			return fmt.Errorf("invalid -event %q: %w", *eventID, err)
		}
		if err := store.Replay(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "requeued %s\n", id)
		return nil
	}
	return fmt.Errorf("unknown dlq command %q\n%s", args[0], dlqUsage)
}

func listDLQ(ctx context.Context, store dlqAdmin, filter outbox.DLQFilter, out io.Writer) error {
	rows, err := store.List(ctx, filter)
	if err != nil {
		return err
	}
	page, next := pagination.Trim(rows, filter.Limit, func(row models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT ID\tTYPE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
	for _, row := range page {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			row.EventID, row.EventType, row.ErrorReason, row.AttemptCount,
			row.FailedAt.UTC().Format(time.RFC3339), row.Message())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if next != "" {
		fmt.Fprintf(out, "next cursor: %s\n", next)
	}
	return nil
}
