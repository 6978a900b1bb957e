//go:build nosdl

package main

import (
	"errors"

	"joydrive/internal/tracker"
)

func newSDLSource() (tracker.Source, func(), error) {
	return nil, nil, errors.New("built without SDL support (nosdl); use the linuxjs or portable backend")
}
