//go:build mage

// Package main contains Mage build targets for jsonl2sql.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "jsonl2sql"
	cmdPkg  = "./cmd/jsonl2sql"
)

// Default runs when mage is invoked without a target.
var Default = Build

// Build compiles the CLI binary into bin/, stamping the version from
// $JSONL2SQL_VERSION (default "dev").
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version := os.Getenv("JSONL2SQL_VERSION")
	if version == "" {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-s -w -X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests with the race detector.
func Test() error {
	mg.Deps(Vet)
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Tidy verifies go.mod lists exactly what the code imports.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy", "-diff")
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}
