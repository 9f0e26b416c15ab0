package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"s3backup/internal/app"
	"s3backup/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close(ctx).
// operation identifies the CLI command being run (see the app.Op constants).
func newApp(ctx context.Context, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg, operation, app.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// closeApp closes a and reports a close failure unless the command already failed.
func closeApp(ctx context.Context, a *app.App, err *error) {
	if cerr := a.Close(ctx); cerr != nil && *err == nil {
		*err = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:          "s3backup",
	Short:        "Archive, encrypt and upload file lists to S3",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		machine, _ := cmd.Flags().GetString("machine")
		if machine == "" {
			if machine, err = os.Hostname(); err != nil {
				return fmt.Errorf("reading hostname: %w", err)
			}
		}

		cfg := config.NewConfig(machine, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Machine:  %s\n", cfg.MachineName)
		fmt.Printf("Bucket:   %s\n", cfg.Store.S3Bucket)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Machine:     %s\n", cfg.MachineName)
		fmt.Printf("Store:       %s %s\n", cfg.Store.Type, cfg.Store.S3Bucket)
		fmt.Printf("Destination: %s\n", cfg.DestLocation)
		fmt.Printf("Compression: %s\n", cfg.Compression)
		fmt.Printf("Hash:        %s\n", cfg.HashAlgorithm)
		fmt.Printf("Encryption:  %t %s\n", cfg.Encryption.Enabled, cfg.Encryption.Type)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nProblems:\n%s\n", err)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:       "backup daily|weekly|monthly",
	Short:     "Archive and upload a schedule's file list",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "weekly", "monthly"},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, err := newApp(ctx, app.OpBackup)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		res, err := a.Backup(ctx, args[0])
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Uploaded %s (%d bytes, %d member(s))\n", res.Key, res.Size, len(res.Members))
		for _, s := range res.Skipped {
			fmt.Printf("skipped: %s\n", s)
		}
		return nil
	},
}

// full-restore command
var fullRestoreCmd = &cobra.Command{
	Use:   "full-restore SCHEDULE DATE|last",
	Short: "Restore every member of an archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		force, _ := cmd.Flags().GetBool("force")
		noOverwrite, _ := cmd.Flags().GetBool("force-no-overwrite")
		downloadOnly, _ := cmd.Flags().GetString("download-only")
		root, _ := cmd.Flags().GetString("root")

		ctx := cmd.Context()
		a, err := newApp(ctx, app.OpFullRestore)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		res, err := a.FullRestore(ctx, app.FullRestoreArgs{
			Schedule:         args[0],
			Date:             args[1],
			Force:            force,
			ForceNoOverwrite: noOverwrite,
			DownloadOnly:     downloadOnly,
			Root:             root,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		if downloadOnly != "" {
			fmt.Printf("Downloaded %s to %s\n", res.Archive.Key, res.Archive.Path)
			return nil
		}
		fmt.Printf("Restored %d member(s) from %s\n", len(res.Extracted), res.Archive.Key)
		for _, s := range res.Skipped {
			fmt.Printf("kept: %s\n", s)
		}
		return nil
	},
}

// browse-files command
var browseCmd = &cobra.Command{
	Use:   "browse-files",
	Short: "Pick archive members to restore interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		schedule, _ := cmd.Flags().GetString("schedule")
		date, _ := cmd.Flags().GetString("date")
		root, _ := cmd.Flags().GetString("root")
		listOnly, _ := cmd.Flags().GetBool("archives")

		ctx := cmd.Context()
		operation := app.OpBrowse
		if listOnly {
			operation = app.OpListArchives
		}
		a, err := newApp(ctx, operation)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		if listOnly {
			if !cmd.Flags().Changed("schedule") {
				schedule = ""
			}
			listings, err := a.ListArchives(ctx, schedule)
			if err != nil {
				return err
			}
			for _, l := range listings {
				fmt.Printf("%s:\n", l.Schedule)
				if len(l.Archives) == 0 {
					fmt.Println("  (none)")
				}
				for _, loc := range l.Archives {
					fmt.Printf("  %s  %s\n", loc.Date, loc.Key)
				}
			}
			return nil
		}

		res, err := a.Browse(ctx, schedule, date, root)
		if err != nil {
			return fmt.Errorf("browse failed: %w", err)
		}
		if res.Aborted {
			fmt.Println("Nothing restored.")
			return nil
		}
		fmt.Printf("Restored %d member(s) from %s\n", len(res.Extracted), res.Archive.Key)
		return nil
	},
}

// put command
var putCmd = &cobra.Command{
	Use:   "put FILE",
	Short: "Upload a single file, or every entry of a file list with --list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		isList, _ := cmd.Flags().GetBool("list")

		path, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, app.OpPut)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		if !isList {
			res, err := a.PutFile(ctx, path)
			if err != nil {
				return fmt.Errorf("put failed: %w", err)
			}
			fmt.Printf("%s -> %s\n", res.Path, res.Key)
			return nil
		}

		results, err := a.PutList(ctx, path)
		if err != nil {
			return fmt.Errorf("put failed: %w", err)
		}
		for _, r := range results {
			fmt.Printf("%s -> %s\n", r.Path, r.Key)
		}
		fmt.Printf("Uploaded %d file(s)\n", len(results))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View backup and restore run history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		a, err := newApp(ctx, app.OpHistory)
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				d := r.FinishedAt.Time.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			target := r.ObjectKey
			if r.Status == "error" {
				target = strings.SplitN(r.Error, "\n", 2)[0]
			}
			fmt.Printf("#%d  %-12s  %-7s  %s  %-7s  %-8s  %s\n",
				r.ID,
				r.Operation,
				r.Schedule,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				target,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("machine", "", "Machine name (defaults to the hostname)")
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)

	rootCmd.AddCommand(fullRestoreCmd)
	fullRestoreCmd.Flags().Bool("force", false, "Overwrite existing files without asking")
	fullRestoreCmd.Flags().Bool("force-no-overwrite", false, "Restore without asking, keeping existing files")
	fullRestoreCmd.Flags().String("download-only", "", "Download and decrypt the archive into DIR without extracting")
	fullRestoreCmd.Flags().String("root", "", "Restore under this directory instead of the configured root")
	fullRestoreCmd.MarkFlagsMutuallyExclusive("force", "force-no-overwrite")

	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().StringP("schedule", "s", "daily", "Schedule to browse")
	browseCmd.Flags().StringP("date", "d", "", "Archive date (YYYYMMDD, YYYY-MM-DD or last)")
	browseCmd.Flags().String("root", "", "Restore under this directory instead of the configured root")
	browseCmd.Flags().Bool("archives", false, "List stored archives instead of browsing")

	rootCmd.AddCommand(putCmd)
	putCmd.Flags().BoolP("list", "l", false, "Treat FILE as a file list")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
