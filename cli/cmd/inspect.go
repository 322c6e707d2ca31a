package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/specbridge/cli/tui"
	"github.com/pithecene-io/specbridge/journal"
	"github.com/pithecene-io/specbridge/render"
)

// InspectCommand returns the inspect command, which reads the flight
// journal. It never opens a channel.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Read flight journal records (flight, metrics)",
		Subcommands: []*cli.Command{
			{
				Name:      "flight",
				Usage:     "Show every record of one flight",
				ArgsUsage: "<flight-id>",
				Flags:     journalReadFlags(),
				Action:    inspectFlightAction,
			},
			{
				Name:  "metrics",
				Usage: "Show the latest metrics record",
				Flags: append(journalReadFlags(), &cli.StringFlag{
					Name:  "component",
					Usage: "Filter by component (secondary, primary)",
				}),
				Action: inspectMetricsAction,
			},
		},
	}
}

func journalReadFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "journal", Value: "fs", Usage: "Journal backend: fs, s3"},
		&cli.StringFlag{Name: "journal-path", Required: true, Usage: "Journal directory (fs) or bucket/prefix (s3)"},
		&cli.StringFlag{Name: "journal-dataset", Usage: "Journal dataset ID (default specbridge)"},
		&cli.StringFlag{Name: "journal-s3-region", Usage: "AWS region for the s3 journal"},
		&cli.StringFlag{Name: "journal-s3-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "journal-s3-path-style", Usage: "Force path-style S3 addressing"},
		TUIFlag,
	}, OutputFlags()...)
}

// FlightRecordRow is the table form of one journal record.
type FlightRecordRow struct {
	Kind      string `json:"record_kind"`
	Direction string `json:"direction"`
	Event     string `json:"event"`
	Seq       any    `json:"seq"`
	Phase     string `json:"phase"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"error_message"`
}

func inspectFlightAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("flight-id required", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	ds, err := openJournalDataset(c.Context, c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	records, err := journal.ReadFlight(c.Context, ds, c.Args().First())
	if errors.Is(err, journal.ErrFlightNotFound) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectFlight, records)
	}
	if r.Format() != render.FormatTable {
		return r.Render(records)
	}
	rows := make([]FlightRecordRow, len(records))
	for i, rec := range records {
		rows[i] = FlightRecordRow{
			Kind:      str(rec["record_kind"]),
			Direction: str(rec["direction"]),
			Event:     str(rec["event"]),
			Seq:       rec["seq"],
			Phase:     str(rec["phase"]),
			ErrorKind: str(rec["error_kind"]),
			Message:   str(rec["error_message"]),
		}
	}
	return r.Render(rows)
}

func inspectMetricsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	ds, err := openJournalDataset(c.Context, c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	rec, err := journal.QueryLatestMetrics(c.Context, ds, c.String("component"))
	if errors.Is(err, journal.ErrNoMetricsFound) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectMetrics, rec)
	}
	return r.Render(rec)
}

func openJournalDataset(ctx context.Context, c *cli.Context) (lode.Dataset, error) {
	var factory lode.StoreFactory
	switch backend := c.String("journal"); backend {
	case "fs":
		factory = lode.NewFSFactory(c.String("journal-path"))
	case "s3":
		bucket, prefix := journal.ParseS3Path(c.String("journal-path"))
		f, err := journal.NewS3Factory(ctx, journal.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       c.String("journal-s3-region"),
			Endpoint:     c.String("journal-s3-endpoint"),
			UsePathStyle: c.Bool("journal-s3-path-style"),
		})
		if err != nil {
			return nil, err
		}
		factory = f
	default:
		return nil, fmt.Errorf("unknown journal backend: %s (must be fs or s3)", backend)
	}
	return journal.OpenDataset(c.String("journal-dataset"), factory)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
