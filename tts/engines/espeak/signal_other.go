//go:build !unix

package espeak

import (
	"errors"
	"os"
	"os/exec"
)

func configure(*exec.Cmd) {}

func suspend(*os.Process) error {
	return errors.ErrUnsupported
}

func resume(*os.Process) error {
	return errors.ErrUnsupported
}
