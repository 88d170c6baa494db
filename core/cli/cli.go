// Package cli is the fanout command line.
package cli

import (
	"github.com/hyperterse/fanout/core/cli/cmd"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
)

// Execute runs the CLI
func Execute() error {
	defer logging.CloseLogFile()
	if err := cmd.Execute(); err != nil {
		logging.New(logging.ErrorTag(err, "cli")).Errorf("%s", err.Error())
		return err
	}
	return nil
}
