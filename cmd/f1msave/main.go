// Command f1msave unpacks, inspects and repacks F1 Manager save files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/F1MSave/core/cas"
	"github.com/FocuswithJustin/F1MSave/core/savefile"
	"github.com/FocuswithJustin/F1MSave/core/sqlite"
	"github.com/FocuswithJustin/F1MSave/internal/archive"
	"github.com/FocuswithJustin/F1MSave/internal/config"
	"github.com/FocuswithJustin/F1MSave/internal/logging"
	"github.com/FocuswithJustin/F1MSave/internal/validation"
	"github.com/FocuswithJustin/F1MSave/internal/workspace"
)

const version = "0.1.0"

// stdout receives command output; logs go to stderr.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for f1msave.
var CLI struct {
	EnvFile   string `name:"env-file" help:"Optional .env file with F1MSAVE_* settings" default:".env" type:"path"`
	LogLevel  string `name:"log-level" help:"Override log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Override log format (text, json)"`

	Unpack   UnpackCmd    `cmd:"" help:"Split a save file into chunk1 and its databases"`
	Repack   RepackCmd    `cmd:"" help:"Build a save file from an unpacked directory"`
	Run      RunCmd       `cmd:"" help:"Run a codec operation (unpack or repack)"`
	Inspect  InspectCmd   `cmd:"" help:"Show the container layout of a save file"`
	Tables   TablesCmd    `cmd:"" help:"List the tables of a save's main database"`
	Snapshot SnapshotCmd  `cmd:"" help:"Archive an unpacked directory as .tar.xz or .tar.gz"`
	Restore  RestoreCmd   `cmd:"" help:"Restore an unpacked directory from a snapshot"`
	Saves    SavesCmd     `cmd:"" help:"List save files in a directory, newest first"`
	Backups  BackupsGroup `cmd:"" help:"Saves replaced by repack"`
	Version  VersionCmd   `cmd:"" help:"Print version information"`
}

// BackupsGroup contains backup store operations.
type BackupsGroup struct {
	List    BackupsListCmd    `cmd:"" help:"List backed up saves"`
	Restore BackupsRestoreCmd `cmd:"" help:"Write a backed up save to a path"`
}

// appContext is bound into every command's Run method.
type appContext struct {
	ctx context.Context
	cfg config.Config
}

func (a *appContext) backupStore() (*cas.Store, error) {
	store, err := cas.NewStore(a.cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup store: %w", err)
	}
	return store, nil
}

func (a *appContext) packOptions() *savefile.PackOptions {
	return &savefile.PackOptions{CompressionLevel: a.cfg.CompressionLevel}
}

// backupExisting copies target into the backup store if it exists.
func (a *appContext) backupExisting(target string) error {
	if _, err := os.Stat(target); err != nil {
		return nil
	}
	store, err := a.backupStore()
	if err != nil {
		return err
	}
	rec, err := store.Backup(target)
	if err != nil {
		return fmt.Errorf("failed to back up %s: %w", target, err)
	}
	fmt.Fprintf(stdout, "Backed up: %s\n", target)
	fmt.Fprintf(stdout, "  SHA-256: %s\n", rec.SHA256)
	return nil
}

func validatePaths(paths ...string) error {
	for _, p := range paths {
		if err := validation.ValidatePath(p); err != nil {
			return fmt.Errorf("invalid path %q: %w", p, err)
		}
	}
	return nil
}

// UnpackCmd splits a save file into a directory.
type UnpackCmd struct {
	Save string `arg:"" help:"Save file to unpack" type:"path"`
	Out  string `required:"" help:"Output directory" type:"path"`
}

func (c *UnpackCmd) Run(app *appContext) error {
	if err := validatePaths(c.Save, c.Out); err != nil {
		return err
	}
	layout, err := savefile.Unpack(app.ctx, c.Save, c.Out)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Unpacked: %s\n", c.Save)
	printLayout(layout)
	fmt.Fprintf(stdout, "  Output: %s\n", c.Out)
	return nil
}

// RepackCmd builds a save file from a directory.
type RepackCmd struct {
	Dir      string `arg:"" help:"Unpacked directory containing chunk1" type:"path"`
	Out      string `required:"" help:"Output save file" type:"path"`
	NoBackup bool   `name:"no-backup" help:"Do not back up an existing output file"`
}

func (c *RepackCmd) Run(app *appContext) error {
	if err := validatePaths(c.Dir, c.Out); err != nil {
		return err
	}
	return repack(app, c.Dir, c.Out, !c.NoBackup)
}

func repack(app *appContext, dir, out string, backup bool) error {
	if backup {
		if err := app.backupExisting(out); err != nil {
			return err
		}
	}
	layout, err := savefile.Pack(app.ctx, dir, out, app.packOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Repacked: %s\n", dir)
	printLayout(layout)
	fmt.Fprintf(stdout, "  Output: %s\n", out)
	return nil
}

// RunCmd is the operation/input/result form of unpack and repack.
type RunCmd struct {
	Operation string `required:"" enum:"unpack,repack" help:"Operation to run (unpack, repack)"`
	Input     string `required:"" help:"Save file (unpack) or directory (repack)" type:"path"`
	Result    string `required:"" help:"Directory (unpack) or save file (repack)" type:"path"`
	NoBackup  bool   `name:"no-backup" help:"Do not back up an existing result file on repack"`
}

func (c *RunCmd) Run(app *appContext) error {
	switch c.Operation {
	case "unpack":
		return (&UnpackCmd{Save: c.Input, Out: c.Result}).Run(app)
	case "repack":
		return (&RepackCmd{Dir: c.Input, Out: c.Result, NoBackup: c.NoBackup}).Run(app)
	default:
		return fmt.Errorf("unknown operation %q", c.Operation)
	}
}

func printLayout(layout *savefile.Layout) {
	fmt.Fprintf(stdout, "  Preamble: %d bytes\n", layout.PreambleLen)
	fmt.Fprintf(stdout, "  Compressed: %d bytes\n", layout.Header.CompressedLength)
	for _, slot := range layout.Slots {
		fmt.Fprintf(stdout, "  %s: %d bytes\n", slot.FileName(), layout.Header.Sizes[slot])
	}
}

// InspectCmd reports a save file's layout without writing anything.
type InspectCmd struct {
	Save string `arg:"" help:"Save file to inspect" type:"path"`
	JSON bool   `help:"Print the report as JSON"`
}

func (c *InspectCmd) Run(app *appContext) error {
	if err := validatePaths(c.Save); err != nil {
		return err
	}
	report, err := savefile.Inspect(app.ctx, c.Save)
	if err != nil {
		return err
	}

	if c.JSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	fmt.Fprintf(stdout, "Save: %s (%d bytes)\n", report.Path, report.FileSize)
	fmt.Fprintf(stdout, "  Marker offset: %d\n", report.MarkerOffset)
	fmt.Fprintf(stdout, "  Preamble: %d bytes\n", report.PreambleLen)
	fmt.Fprintf(stdout, "  Compressed: %d bytes\n", report.CompressedLength)
	fmt.Fprintf(stdout, "  Slot sizes: %d %d %d\n", report.SlotSizes[0], report.SlotSizes[1], report.SlotSizes[2])
	if report.TrailingBytes > 0 {
		fmt.Fprintf(stdout, "  Trailing: %d bytes\n", report.TrailingBytes)
	}
	for _, s := range report.Slots {
		fmt.Fprintf(stdout, "  %s (%s, %d bytes, %s)\n", s.FileName, s.Slot, s.Size, s.Type)
		fmt.Fprintf(stdout, "    SHA-256: %s\n", s.Digest.SHA256)
		fmt.Fprintf(stdout, "    BLAKE3: %s\n", s.Digest.BLAKE3)
	}
	return nil
}

// TablesCmd lists the tables of a save's main database.
type TablesCmd struct {
	Save string `arg:"" help:"Save file" type:"path"`
}

func (c *TablesCmd) Run(app *appContext) error {
	if err := validatePaths(c.Save); err != nil {
		return err
	}
	session, err := workspace.Open(app.ctx, c.Save, &workspace.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logging.ErrorContext(app.ctx, "session close failed", "dir", session.Dir(), "error", err)
		}
	}()

	tables, err := session.Tables(app.ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Fprintf(stdout, "%s\t%d\n", t.Name, t.Rows)
	}
	if err := session.Check(app.ctx); err != nil {
		return fmt.Errorf("%s: %w", savefile.MainDBName, err)
	}
	fmt.Fprintf(stdout, "Integrity: ok\n")
	return nil
}

// SnapshotCmd archives an unpacked directory.
type SnapshotCmd struct {
	Dir string `arg:"" help:"Unpacked directory" type:"existingdir"`
	Out string `required:"" help:"Output archive (.tar.xz or .tar.gz)" type:"path"`
}

func (c *SnapshotCmd) Run(app *appContext) error {
	if err := validatePaths(c.Dir, c.Out); err != nil {
		return err
	}
	names := []string{savefile.ChunkFileName}
	for _, slot := range savefile.Slots {
		names = append(names, slot.FileName())
	}
	if _, err := os.Stat(filepath.Join(c.Dir, savefile.ChunkFileName)); err != nil {
		return fmt.Errorf("%s is not an unpacked save: %w", c.Dir, err)
	}
	if err := archive.CreateSnapshot(c.Dir, c.Out, names); err != nil {
		return err
	}
	entries, err := archive.List(c.Out)
	if err != nil {
		return err
	}
	logging.InfoContext(app.ctx, "snapshot created", "dir", c.Dir, "archive", c.Out, "files", len(entries))
	fmt.Fprintf(stdout, "Created: %s\n", c.Out)
	for _, e := range entries {
		fmt.Fprintf(stdout, "  %s: %d bytes\n", e.Name, e.Size)
	}
	return nil
}

// RestoreCmd restores an unpacked directory from a snapshot.
type RestoreCmd struct {
	Archive string `arg:"" help:"Snapshot archive" type:"existingfile"`
	Out     string `required:"" help:"Output directory" type:"path"`
}

func (c *RestoreCmd) Run(app *appContext) error {
	if err := validatePaths(c.Archive, c.Out); err != nil {
		return err
	}
	files, err := archive.Extract(c.Archive, c.Out)
	if err != nil {
		return err
	}
	logging.InfoContext(app.ctx, "snapshot restored", "archive", c.Archive, "dir", c.Out, "files", len(files))
	for _, f := range files {
		fmt.Fprintf(stdout, "Restored: %s\n", filepath.Join(c.Out, f))
	}
	return nil
}

// SavesCmd lists save files.
type SavesCmd struct {
	Dir string `arg:"" help:"Directory containing save files" type:"existingdir"`
}

func (c *SavesCmd) Run(app *appContext) error {
	saves, err := workspace.ListSaves(c.Dir)
	if err != nil {
		return err
	}
	for _, s := range saves {
		fmt.Fprintf(stdout, "%s\t%d\t%s\n", s.Name, s.Size, s.ModTime.Format(time.RFC3339))
	}
	return nil
}

// BackupsListCmd lists the backup journal.
type BackupsListCmd struct{}

func (c *BackupsListCmd) Run(app *appContext) error {
	store, err := app.backupStore()
	if err != nil {
		return err
	}
	records, err := store.Records()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Store: %s\n", store.Root())
	for _, r := range records {
		fmt.Fprintf(stdout, "%s\t%s\t%d\t%s\n", r.Time.Format(time.RFC3339), r.SHA256, r.Size, r.Source)
	}
	return nil
}

// BackupsRestoreCmd writes a stored save to a path.
type BackupsRestoreCmd struct {
	Digest string `arg:"" help:"SHA-256 or BLAKE3 digest of the backup"`
	Out    string `required:"" help:"Output save file" type:"path"`
}

func (c *BackupsRestoreCmd) Run(app *appContext) error {
	if err := validatePaths(c.Out); err != nil {
		return err
	}
	store, err := app.backupStore()
	if err != nil {
		return err
	}
	if err := store.Restore(c.Digest, c.Out); err != nil {
		return fmt.Errorf("backup %s: %w", c.Digest, err)
	}
	fmt.Fprintf(stdout, "Restored: %s\n", c.Out)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "f1msave version %s (sqlite %s)\n", version, info.DriverType)
	return nil
}

// newAppContext loads configuration and applies command-line overrides.
func newAppContext(ctx context.Context) (*appContext, error) {
	cfg, err := config.Load(CLI.EnvFile)
	if err != nil {
		return nil, err
	}
	if CLI.LogLevel != "" {
		if cfg.LogLevel, err = logging.ParseLevel(CLI.LogLevel); err != nil {
			return nil, err
		}
	}
	if CLI.LogFormat != "" {
		if cfg.LogFormat, err = logging.ParseFormat(CLI.LogFormat); err != nil {
			return nil, err
		}
	}
	logging.InitLoggerWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return &appContext{ctx: ctx, cfg: cfg}, nil
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("f1msave"),
		kong.Description("F1 Manager save file codec"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := newAppContext(ctx)
	kctx.FatalIfErrorf(err)
	err = kctx.Run(app)
	kctx.FatalIfErrorf(err)
}
