// Package mover relocates batch files from the drop folder to their
// staging location. Safety comes from digest checks on the source and
// destination copies: a source file is deleted if and only if an exact
// digest match at the destination has been observed.
package mover

import (
	"crypto/md5" //nolint:gosec // integrity check against accidental corruption, not an adversary
	"encoding/hex"
	"io"
	"os"

	"github.com/imagingrc/omero-intake/internal/errors"
)

// digestBlockSize is the streaming read size for digest computation.
const digestBlockSize = 64 * 1024

// Digest returns the hex content digest of a file, reading it in fixed
// size blocks so arbitrarily large image files never land in memory.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.New(err).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer f.Close()

	hasher := md5.New() //nolint:gosec
	buf := make([]byte, digestBlockSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", errors.New(err).
			Component("mover").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
