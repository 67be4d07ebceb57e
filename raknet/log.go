package raknet

import (
	"github.com/pterm/pterm"
)

// logger is used by every listener and connection in the package.
var logger = pterm.DefaultLogger.WithTime(true).WithTimeFormat("02 Jan 15:04:05")

// SetLogger replaces the logger of the package. It should be called before any listener is created.
func SetLogger(l *pterm.Logger) {
	logger = l
}
