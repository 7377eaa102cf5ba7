// Package main provides the storagectl binary entry point. storagectl is a
// command line front end for the storage inventory service: recording rack
// scans, checking containers in and out of storage locations, searching free
// capacity, and exporting pick worksheets and robot transfer files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storagecore/internal/blob"
	"storagecore/internal/config"
	"storagecore/internal/core"
	blobs3 "storagecore/internal/infra/blob/s3"
	"storagecore/internal/infra/persistence/memory"
	"storagecore/internal/infra/persistence/postgres"
	"storagecore/internal/infra/persistence/sqlite"
	"storagecore/internal/worksheet"
)

const (
	Version = "0.1.0"
	appName = "storagectl"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *core.Service
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		actor      string
	)

	env := &cliEnv{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Laboratory storage inventory tool",
		Long: `storagectl manages barcoded containers in hierarchical storage:
racks and loose tubes are checked into freezer slots, rack layouts are
reconstructed from scan history, and batch pick lists are exported as
worksheets and robot transfer files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "init", "config", "help", "completion":
				return nil
			}
			cfg, err := loadConfig(configPath, logLevel)
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.logger = cfg.NewLogger()
			svc, err := openService(cfg, env.logger)
			if err != nil {
				return err
			}
			env.service = svc
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&actor, "actor", "", "Operator recorded on storage events")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	cmd.AddCommand(configCmd())
	cmd.AddCommand(scanCmd(env, &actor))
	cmd.AddCommand(checkInCmd(env, &actor))
	cmd.AddCommand(checkOutCmd(env, &actor))
	cmd.AddCommand(capacityCmd(env))
	cmd.AddCommand(batchCmd(env))
	cmd.AddCommand(picklistCmd(env))
	cmd.AddCommand(exportCmd(env, &actor))

	return cmd
}

func loadConfig(configPath, logLevel string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.NewLoader(nil).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func openService(cfg *config.Config, logger *slog.Logger) (*core.Service, error) {
	engine := core.NewDefaultRulesEngine()
	var store core.PersistentStore
	var err error
	switch cfg.Storage.Driver {
	case "memory":
		store = memory.NewStore(engine)
	case "postgres":
		store, err = postgres.NewStore(cfg.Storage.PostgresDSN, engine)
	default:
		store, err = sqlite.NewStore(cfg.Storage.SQLitePath, engine)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	return core.NewService(store,
		core.WithLogger(logger),
		core.WithPolicy(cfg.ServicePolicy()),
	), nil
}

func openBlob(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Driver {
	case "memory":
		return blob.NewMemory(), nil
	case "s3":
		return blob.NewS3(ctx, blobs3.Config{
			Region:    cfg.Blob.S3Region,
			Bucket:    cfg.Blob.S3Bucket,
			Endpoint:  cfg.Blob.S3Endpoint,
			PathStyle: cfg.Blob.S3PathStyle,
		})
	default:
		return blob.NewFilesystem(cfg.Blob.FSRoot)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage storagectl configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.NewLoader(nil).EnsureUserConfig()
		},
	})
	return cmd
}

func scanCmd(env *cliEnv, actor *string) *cobra.Command {
	var rackType string
	cmd := &cobra.Command{
		Use:   "scan RACK POSITION=TUBE...",
		Short: "Record an in-place rack scan",
		Long: `Records the tube layout read off a rack scanner, e.g.

  storagectl scan RACK-123 A01=TUBE-1 A02=TUBE-2

The layout becomes the trusted source for a later rack check-in.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := make(map[core.Position]string, len(args)-1)
			for _, arg := range args[1:] {
				pos, tube, ok := strings.Cut(arg, "=")
				if !ok || pos == "" || tube == "" {
					return fmt.Errorf("layout entry %q must be POSITION=TUBE", arg)
				}
				layout[core.Position(pos)] = tube
			}
			formation, _, err := env.service.RecordInPlaceScan(cmd.Context(), args[0], layout, core.RackType(rackType), *actor)
			if err != nil {
				return err
			}
			fmt.Printf("recorded scan of %s: formation %s (%d tubes)\n", args[0], formation.Label, formation.TubeCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&rackType, "rack-type", string(core.RackMatrix96), "Rack geometry of the scanned rack")
	return cmd
}

func checkInCmd(env *cliEnv, actor *string) *cobra.Command {
	var locationID string
	cmd := &cobra.Command{
		Use:   "check-in BARCODE...",
		Short: "Check containers into a storage location",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if locationID == "" {
				return fmt.Errorf("--location is required")
			}
			outcomes := env.service.BulkCheckIn(cmd.Context(), args, locationID, *actor)
			return printOutcomes(outcomes)
		},
	}
	cmd.Flags().StringVarP(&locationID, "location", "l", "", "Target storage location id")
	return cmd
}

func checkOutCmd(env *cliEnv, actor *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-out BARCODE...",
		Short: "Check containers out of storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes := env.service.BulkCheckOut(cmd.Context(), args, *actor)
			return printOutcomes(outcomes)
		},
	}
}

func printOutcomes(outcomes []core.Outcome) error {
	failed := false
	for _, out := range outcomes {
		fmt.Printf("%-8s %s: %s\n", out.Status, out.Barcode, out.Message)
		if out.Status == core.StatusDanger {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("one or more containers were rejected")
	}
	return nil
}

func capacityCmd(env *cliEnv) *cobra.Command {
	var (
		rackOfSlots bool
		maxResults  int
	)
	cmd := &cobra.Command{
		Use:   "capacity LOCATION_ID",
		Short: "List free storage units under a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, verr, err := env.service.GatherAvailableCapacity(cmd.Context(), args[0], rackOfSlots, maxResults)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Printf("%s\t%s\n", entry.Location.ID, entry.Trail)
			}
			if verr != nil && verr.HasProblems() {
				fmt.Fprintf(os.Stderr, "warnings:\n")
				for _, problem := range verr.Problems {
					fmt.Fprintf(os.Stderr, "  %s\n", problem)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rackOfSlots, "rack-of-slots", false, "Treat rack locations as one unit per slot")
	cmd.Flags().IntVar(&maxResults, "max", 0, "Maximum units to report (0 = configured page size)")
	return cmd
}

func batchCmd(env *cliEnv) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage vessel batches",
	}
	create := &cobra.Command{
		Use:   "create BARCODE...",
		Short: "Create a batch over the given tubes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _, err := env.service.CreateVesselBatch(cmd.Context(), core.VesselBatch{
				Name:                 name,
				StartingVesselLabels: args,
				Active:               true,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created batch %s (%s) with %d vessels\n", batch.ID, batch.Name, len(batch.StartingVesselLabels))
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Human readable batch name")
	cmd.AddCommand(create)
	return cmd
}

func picklistCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "picklist BATCH_ID",
		Short: "Print the pick worksheet for a batch as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, verr, err := env.service.BuildPickList(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if verr != nil && verr.HasProblems() {
				fmt.Fprintf(os.Stderr, "warnings:\n")
				for _, problem := range verr.Problems {
					fmt.Fprintf(os.Stderr, "  %s\n", problem)
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
}

func exportCmd(env *cliEnv, actor *string) *cobra.Command {
	var (
		targets []string
		output  string
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "export BATCH_ID",
		Short: "Render the robot transfer file for a batch",
		Long: `Renders the CSV transfer file consumed by the tube-picking robot.
Every tube needs a target assignment:

  storagectl export BATCH --target TUBE-1=DEST:A01 --target TUBE-2=DEST:B01

With --archive the worksheet and transfer file are also stored on the
configured blob backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseTargets(targets)
			if err != nil {
				return err
			}
			if archive {
				return runArchive(cmd.Context(), env, args[0], assignments, *actor)
			}

			rows, verr, err := env.service.BuildPickList(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if verr != nil && verr.HasProblems() {
				return verr
			}
			applyTargets(rows, assignments)
			payload, err := env.service.ExportTransferFile(cmd.Context(), rows)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(payload)
				return err
			}
			return os.WriteFile(output, payload, 0o644)
		},
	}
	cmd.Flags().StringArrayVar(&targets, "target", nil, "Target assignment TUBE=DEST:POSITION (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the transfer file here instead of stdout")
	cmd.Flags().BoolVar(&archive, "archive", false, "Archive worksheet and transfer file on the blob backend")
	return cmd
}

func parseTargets(raw []string) ([]worksheet.TargetAssignment, error) {
	out := make([]worksheet.TargetAssignment, 0, len(raw))
	for _, entry := range raw {
		tube, dest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("target %q must be TUBE=DEST:POSITION", entry)
		}
		vessel, position, ok := strings.Cut(dest, ":")
		if !ok || tube == "" || vessel == "" || position == "" {
			return nil, fmt.Errorf("target %q must be TUBE=DEST:POSITION", entry)
		}
		out = append(out, worksheet.TargetAssignment{
			SourceVessel:   tube,
			TargetVessel:   vessel,
			TargetPosition: core.Position(position),
		})
	}
	return out, nil
}

func applyTargets(rows []core.PickerDataRow, targets []worksheet.TargetAssignment) {
	byTube := make(map[string]worksheet.TargetAssignment, len(targets))
	for _, t := range targets {
		byTube[t.SourceVessel] = t
	}
	for ri := range rows {
		for vi := range rows[ri].Vessels {
			if t, ok := byTube[rows[ri].Vessels[vi].SourceVessel]; ok {
				rows[ri].Vessels[vi].TargetVessel = t.TargetVessel
				rows[ri].Vessels[vi].TargetPosition = t.TargetPosition
			}
		}
	}
}

func runArchive(ctx context.Context, env *cliEnv, batchID string, targets []worksheet.TargetAssignment, actor string) error {
	store, err := openBlob(ctx, env.cfg)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	worker := worksheet.NewWorker(env.service, store, nil, env.cfg.Picker.ArchivePrefix)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	record, err := worker.EnqueueExport(ctx, worksheet.ExportInput{
		BatchID:     batchID,
		Targets:     targets,
		RequestedBy: actor,
	})
	if err != nil {
		return err
	}
	for {
		current, ok := worker.GetExport(record.ID)
		if !ok {
			return fmt.Errorf("archive record vanished")
		}
		switch current.Status {
		case worksheet.ExportStatusSucceeded:
			for _, artifact := range current.Artifacts {
				fmt.Printf("archived %s (%d bytes) at %s\n", artifact.Format, artifact.SizeBytes, artifact.Key)
			}
			return nil
		case worksheet.ExportStatusFailed:
			return fmt.Errorf("archive failed: %s", current.Error)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
