package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/lightclove/archivator"
	"github.com/lightclove/archivator/internal"
	"github.com/lightclove/archivator/util"
	"github.com/schollz/progressbar/v3"
)

type Restore struct {
	Output   flags.Filename `short:"o" long:"output" description:"directory to restore into; default is a new directory named after the archive"`
	Password string         `long:"password" description:"password for encrypted archives; prompted for interactively when omitted" default-mask:"-"`
	Args     struct {
		Archive string `positional-arg-name:"archive" description:"the archive file to restore, or an s3://bucket/key URI" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Restore) Execute(args []string) (err error) {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	archive := c.Args.Archive
	logger := internal.NewLogger("restore", archive)

	if isS3URI(archive) {
		logger.Printf("downloading archive")
		if archive, err = downloadArchive(ctx, archive, "."); err != nil {
			return err
		}
		defer os.Remove(archive)
		logger.Printf(`done downloading to "%s"`, archive)
	}

	output := string(c.Output)
	if output == "" {
		stem, _ := util.StemAndExt(filepath.Base(archive))
		d, err := util.MkExclDir(".", stem, 0755)
		if err != nil {
			return fmt.Errorf("create output directory error: %w", err)
		}
		output = d
	}

	logger.Printf(`start restoring to "%s"`, output)

	attempt := 0
	var bar *progressbar.ProgressBar
	stats, err := archivator.Restore(ctx, archive, output, func(opts *archivator.RestoreOptions) {
		if c.Password != "" {
			opts.Password = []byte(c.Password)
		}
		opts.RequestPassword = func() ([]byte, error) {
			attempt++
			if attempt == 1 {
				return promptPassword("enter archive password: ")
			}
			return promptPassword(fmt.Sprintf("wrong password, try again (attempt %d of %d): ", attempt, archivator.MaxPasswordAttempts))
		}
		opts.ProgressInterval = 1
		opts.Progress = func(st archivator.RunStatistics, done bool) {
			if bar == nil {
				bar = internal.DefaultBytes(st.TotalBytes, "restoring")
			}
			_ = bar.Set64(st.Bytes)
			if done {
				_ = bar.Finish()
			}
		}
	})

	switch {
	case errors.Is(err, context.Canceled):
		if stats != nil {
			logger.Printf("restore cancelled; %d files already extracted were kept", stats.Files)
		} else {
			logger.Printf("restore cancelled")
		}
		return nil

	case err != nil:
		return fmt.Errorf(`restore "%s" error: %w`, c.Args.Archive, err)
	}

	logger.Printf(`restored %d/%d files (%s) to "%s"`,
		stats.Files, stats.TotalFiles, humanize.IBytes(uint64(stats.Bytes)), output)

	for _, fe := range stats.Errors {
		logger.Printf(`skipped "%s": %v`, fe.Path, fe.Err)
	}
	if n := len(stats.Errors); n != 0 {
		logger.Printf("%d entries were skipped", n)
	}

	return nil
}
