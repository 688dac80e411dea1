package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptPassword reads a password from the terminal without echoing it. When stdin is
// not a terminal (pipes, tests), a plain line read is used instead.
func promptPassword(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		defer fmt.Fprintln(os.Stderr)
		return term.ReadPassword(fd)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}

	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// promptNewPassword collects a new archive password interactively, requiring a non-empty
// value and a matching confirmation.
func promptNewPassword() ([]byte, error) {
	password, err := promptPassword("enter archive password: ")
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}

	confirm, err := promptPassword("confirm password: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(password, confirm) {
		return nil, fmt.Errorf("passwords do not match")
	}

	return password, nil
}
