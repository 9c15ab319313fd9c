//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the studio. MAPSTUDIO_CONFIG selects the configuration file.
func (Run) Studio() error {
	args := []string{"run", "."}
	if cfg := os.Getenv("MAPSTUDIO_CONFIG"); cfg != "" {
		args = append(args, "-config", cfg)
	}
	fmt.Println("Run studio...")
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the studio without a window, against the headless device.
func (Run) Headless() error {
	mg.Deps(Build.Studio)
	_, err := executeCmd("bin/mapstudio", withArgs("-headless"), withStream())
	return err
}
