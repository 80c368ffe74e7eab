// Package main implements the pvet CLI for operating against a running
// pipevetd daemon and for replaying recorded sessions offline.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes. Transport and usage failures exit 1; a session that failed
// validation or an audit that found credentials exits 2, so scripts can
// tell the two apart.
const (
	exitTransportError   = 1
	exitValidationFailed = 2
)

var (
	// serverURL is the base URL of the pipevetd HTTP facade.
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var xerr *exitError
		if errors.As(err, &xerr) {
			os.Exit(xerr.code)
		}
		os.Exit(exitTransportError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pvet",
	Short: "CLI for the pipevet validation engine",
	Long: `pvet is a command-line interface for the pipevet validation engine.
It queries a running pipevetd daemon for health and session reports, replays
recorded session transcripts through an offline engine, and audits persisted
context for leaked credentials.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9190", "pipevetd server URL")
}

// exitError carries a process exit status through cobra's error path.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// validationFailed builds an error that exits with status 2.
func validationFailed(format string, args ...interface{}) error {
	return &exitError{code: exitValidationFailed, msg: fmt.Sprintf(format, args...)}
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
