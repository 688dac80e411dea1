package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/lightclove/archivator"
	"github.com/lightclove/archivator/internal"
	"github.com/schollz/progressbar/v3"
)

type Backup struct {
	Output   flags.Filename `short:"o" long:"output" description:"path to the archive to create; default is \"<source>_<DD-MM-YYYY>_<HH-MM>.zip\" next to the source directory"`
	Password bool           `short:"p" long:"password" description:"prompt for a password and encrypt the archive with it"`
	Force    bool           `short:"f" long:"force" description:"overwrite the output archive if it already exists"`
	Upload   string         `long:"upload" description:"after a successful backup, upload the archive to this s3://bucket/key URI"`
	Args     struct {
		Source flags.Filename `positional-arg-name:"source" description:"the directory to back up" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Backup) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	src := string(c.Args.Source)
	logger := internal.NewLogger("backup", src)

	output := string(c.Output)
	if output == "" {
		output = DefaultArchiveName(src, time.Now())
	}

	if _, err := os.Stat(output); err == nil && !c.Force {
		return fmt.Errorf(`archive "%s" already exists; pass --force to overwrite`, output)
	}

	var password []byte
	if c.Password {
		var err error
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	logger.Printf(`start backing up to "%s"`, output)

	var bar *progressbar.ProgressBar
	stats, err := archivator.Backup(ctx, src, output, func(opts *archivator.BackupOptions) {
		opts.Password = password
		opts.ScanProgress = archivator.NewScanReporter(logger)
		opts.ProgressInterval = 1
		opts.Progress = func(st archivator.RunStatistics, done bool) {
			if bar == nil {
				bar = internal.DefaultBytes(st.TotalBytes, "backing up")
			}
			_ = bar.Set64(st.Bytes)
			if done {
				_ = bar.Finish()
			}
		}
	})

	switch {
	case errors.Is(err, context.Canceled):
		logger.Printf("backup cancelled; no archive was created")
		return nil

	case err != nil:
		return fmt.Errorf(`back up "%s" error: %w`, src, err)
	}

	printBackupSummary(logger, output, stats)

	if c.Upload != "" {
		logger.Printf(`uploading to "%s"`, c.Upload)
		if err = uploadArchive(ctx, output, c.Upload); err != nil {
			return err
		}
		logger.Printf("done uploading")
	}

	return nil
}

func printBackupSummary(logger *log.Logger, output string, stats *archivator.RunStatistics) {
	logger.Printf("archived %d/%d files (%s original, %s compressed, ratio %.1f%%) to \"%s\"",
		stats.Files, stats.TotalFiles,
		humanize.IBytes(uint64(stats.Bytes)), humanize.IBytes(uint64(stats.ArchiveSize)),
		stats.CompressionRatio()*100, output)

	for _, fe := range stats.Errors {
		logger.Printf(`skipped "%s": %v`, fe.Path, fe.Err)
	}
	if n := len(stats.Errors); n != 0 {
		logger.Printf("%d files were skipped", n)
	}
}
