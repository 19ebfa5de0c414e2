//go:build !linux

package main

import (
	"errors"
	"os"
)

func openPTY() (*os.File, string, error) {
	return nil, "", errors.New("pseudo terminal replay is only supported on linux")
}
