package cmd

import (
	"github.com/jessevdk/go-flags"
)

// Archivator is the root command set.
type Archivator struct {
	Backup  Backup  `command:"backup" alias:"b" description:"create a compressed, optionally password-protected backup of a directory"`
	Restore Restore `command:"restore" alias:"r" description:"restore a directory from a backup archive"`
}

// NewParser returns the CLI parser with all commands registered.
func NewParser() (*flags.Parser, error) {
	opts := &Archivator{}

	p := flags.NewNamedParser("archivator", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	return p, nil
}
