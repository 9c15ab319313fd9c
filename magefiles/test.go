//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the loader, renderer and universe tests with the race detector.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race",
		"./engine/systems/...", "./engine/renderer/...", "./engine/universe/...", "./engine/status/..."), withStream())
	return err
}
