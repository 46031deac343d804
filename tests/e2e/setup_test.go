package e2e

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

var daemonBinPath string
var ctlBinPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "procfleet-e2e-*")
	if err != nil {
		panic("failed to create temp dir: " + err.Error())
	}
	defer os.RemoveAll(tmpDir)

	daemonBinPath = filepath.Join(tmpDir, "procfleetd")
	if err := buildBinary(daemonBinPath, "../../cmd/procfleetd"); err != nil {
		panic(err.Error())
	}

	ctlBinPath = filepath.Join(tmpDir, "procfleetctl")
	if err := buildBinary(ctlBinPath, "../../cmd/procfleetctl"); err != nil {
		panic(err.Error())
	}

	os.Exit(m.Run())
}

func buildBinary(out, pkg string) error {
	cmd := exec.Command("go", "build", "-o", out, pkg)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
