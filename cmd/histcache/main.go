package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/histcache/internal/logger"
	"github.com/rxtech-lab/histcache/pkg/cache"
	"github.com/rxtech-lab/histcache/pkg/provider"
)

func newManager(cmd *cli.Command) (*cache.Manager, error) {
	config, err := cache.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := logger.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var bar *progressbar.ProgressBar

	onProgress := func(current, total int, ric string) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Fetching"),
				progressbar.OptionShowCount())
		}

		bar.Set(current)
	}

	manager, err := cache.NewManager(config, zapLogger, onProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache manager: %w", err)
	}

	return manager, nil
}

// resolveRICs picks the instrument universe for a command: a named index
// from the lookup, or an explicit identifier list.
func resolveRICs(manager *cache.Manager, cmd *cli.Command) ([]string, error) {
	if index := cmd.String("index"); index != "" {
		return manager.Resolve(index)
	}

	rics := cmd.StringSlice("rics")
	if len(rics) == 0 {
		return nil, fmt.Errorf("either --index or --rics is required")
	}

	return rics, nil
}

func printReport(report *cache.Report) {
	for _, result := range report.Results {
		switch result.Status {
		case cache.StatusMissingFields:
			fmt.Printf("%-12s %s (missing: %v)\n", result.RIC, result.Status, result.MissingFields)
		case cache.StatusFailed:
			fmt.Printf("%-12s %s (%v)\n", result.RIC, result.Status, result.Err)
		default:
			fmt.Printf("%-12s %s\n", result.RIC, result.Status)
		}
	}
}

func resolveAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	rics, err := manager.Resolve(cmd.String("index"))
	if err != nil {
		return err
	}

	for _, ric := range rics {
		fmt.Println(ric)
	}

	return nil
}

func initAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	rics, err := resolveRICs(manager, cmd)
	if err != nil {
		return err
	}

	report, err := manager.Init(ctx, cache.InitParams{
		RICs:   rics,
		Fields: cmd.StringSlice("fields"),
		Start:  cmd.Timestamp("start"),
		End:    cmd.Timestamp("end"),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	printReport(report)

	return nil
}

func updateAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	rics, err := resolveRICs(manager, cmd)
	if err != nil {
		return err
	}

	report, err := manager.Update(ctx, cache.UpdateParams{
		RICs: rics,
		End:  cmd.Timestamp("end"),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	printReport(report)

	return nil
}

func loadAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := newManager(cmd)
	if err != nil {
		return err
	}

	rics, err := resolveRICs(manager, cmd)
	if err != nil {
		return err
	}

	result, err := manager.Load(cache.LoadParams{
		RICs:       rics,
		Preprocess: cmd.Bool("preprocess"),
	})
	if err != nil {
		return err
	}

	for _, ric := range rics {
		ser, ok := result[ric]
		if !ok {
			fmt.Printf("%-12s (no cache entry)\n", ric)

			continue
		}

		if latest, ok := ser.LatestDate(); ok {
			fmt.Printf("%-12s %d rows, fields %v, latest %s\n", ric, ser.Len(), ser.Fields(), latest.Format(time.DateOnly))
		} else {
			fmt.Printf("%-12s 0 rows\n", ric)
		}
	}

	return nil
}

func providersAction(ctx context.Context, cmd *cli.Command) error {
	for _, name := range provider.Supported() {
		info, err := provider.GetInfo(name)
		if err != nil {
			return err
		}

		fmt.Printf("%-18s %s — %s\n", info.Name, info.DisplayName, info.Description)
	}

	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
		Value:   "histcache.yaml",
	}

	indexFlag := &cli.StringFlag{
		Name:  "index",
		Usage: "Named instrument index to resolve (e.g. sp500)",
	}

	ricsFlag := &cli.StringSliceFlag{
		Name:  "rics",
		Usage: "Explicit instrument identifiers (alternative to --index)",
	}

	endFlag := &cli.TimestampFlag{
		Name:     "end",
		Aliases:  []string{"e"},
		Usage:    "End date in `YYYY-MM-DD` format. Defaults to today.",
		Value:    time.Now(),
		Required: false,
		Config: cli.TimestampConfig{
			Layouts: []string{"2006-01-02"},
		},
	}

	cmd := &cli.Command{
		Name:  "histcache",
		Usage: "Fetch, refresh and load per-instrument historical time series",
		Commands: []*cli.Command{
			{
				Name:   "resolve",
				Usage:  "Print the instrument list for a named index",
				Flags:  []cli.Flag{configFlag, indexFlag},
				Action: resolveAction,
			},
			{
				Name:  "init",
				Usage: "Fetch and cache full history for instruments without a cache entry",
				Flags: []cli.Flag{
					configFlag,
					indexFlag,
					ricsFlag,
					&cli.StringSliceFlag{
						Name:     "fields",
						Aliases:  []string{"f"},
						Usage:    "Field names to fetch (e.g. close,volume)",
						Required: true,
					},
					&cli.TimestampFlag{
						Name:     "start",
						Aliases:  []string{"s"},
						Usage:    "Start date in `YYYY-MM-DD` format",
						Required: true,
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					endFlag,
				},
				Action: initAction,
			},
			{
				Name:   "update",
				Usage:  "Append the date range since each instrument's latest cached row",
				Flags:  []cli.Flag{configFlag, indexFlag, ricsFlag, endFlag},
				Action: updateAction,
			},
			{
				Name:  "load",
				Usage: "Read cached series and print a summary",
				Flags: []cli.Flag{
					configFlag,
					indexFlag,
					ricsFlag,
					&cli.BoolFlag{
						Name:  "preprocess",
						Usage: "Forward-fill gaps and drop rows that remain incomplete",
					},
				},
				Action: loadAction,
			},
			{
				Name:   "providers",
				Usage:  "List supported vendor bindings",
				Action: providersAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
