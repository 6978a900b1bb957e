//go:build !nosdl

package main

import (
	"joydrive/internal/source/sdljoy"
	"joydrive/internal/tracker"
)

func newSDLSource() (tracker.Source, func(), error) {
	src := &sdljoy.Source{}
	return src, src.Close, nil
}
