//go:build !linux

package main

func raiseOpenFileLimit() error {
	return nil
}
