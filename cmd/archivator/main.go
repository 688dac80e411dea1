package main

import (
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/lightclove/archivator/internal/cmd"
)

func main() {
	p, err := cmd.NewParser()
	if err != nil {
		log.Fatal(err)
	}

	if _, err = p.Parse(); err != nil && !flags.WroteHelp(err) {
		os.Exit(1)
	}
}
