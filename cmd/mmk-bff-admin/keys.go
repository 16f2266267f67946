package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/segmentio/ksuid"
)

const encryptionKeySize = 32

type genKeyOptions struct {
	KeyID string
}

func parseGenKeyFlags(args []string) (genKeyOptions, error) {
	fs := flag.NewFlagSet("gen-key", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts genKeyOptions
	fs.StringVar(&opts.KeyID, "kid", "", "Key id (defaults to a new KSUID)")
	if err := fs.Parse(args); err != nil {
		return genKeyOptions{}, err
	}
	opts.KeyID = strings.TrimSpace(opts.KeyID)
	if strings.ContainsAny(opts.KeyID, ":,") {
		return genKeyOptions{}, errors.New("--kid cannot contain ':' or ','")
	}
	return opts, nil
}

// newKeyEntry returns a "kid:hexkey" entry for SESSION_ENCRYPTION_KEYS.
func newKeyEntry(kid string) (string, error) {
	if kid == "" {
		kid = ksuid.New().String()
	}
	secret := make([]byte, encryptionKeySize)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return kid + ":" + hex.EncodeToString(secret), nil
}

func runGenKey(cmdCtx *commandContext, args []string) error {
	opts, err := parseGenKeyFlags(args)
	if err != nil {
		return err
	}
	entry, err := newKeyEntry(opts.KeyID)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.Out, entry)
}
