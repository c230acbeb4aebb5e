package allhic

import (
	"os"

	logging "github.com/op/go-logging"
)

// Version is the core's version string, reported by `--version`.
const Version = "1.0.0-core"

var log = logging.MustGetLogger("allhic")

// tagFormat renders op/go-logging records using the diagnostic tags the
// spec requires: [I::...] info/notice, [W::...] warnings, [E::...] errors.
const tagFormat = `[%{level:.1s}::%{module}] %{message}`

// BackendFormatter is the op/go-logging backend wired in cmd/allhic's
// main, translating Info/Warning/Error calls into the spec's tagged
// diagnostic stream via op/go-logging's %{level:.1s} first-letter
// convention (I, W, E, D, C). Components log with Infof/Warningf/Errorf
// rather than Noticef so the first letter lines up with the spec's tags
// directly, with no special-casing in the formatter itself.
var BackendFormatter logging.Backend

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(tagFormat)
	formatted := logging.NewBackendFormatter(backend, formatter)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(logging.INFO, "")
	BackendFormatter = leveled
	logging.SetBackend(BackendFormatter)
}

// SetVerbosity adjusts the log level: 0 keeps INFO+, >0 enables DEBUG.
func SetVerbosity(v int) {
	leveled := logging.AddModuleLevel(BackendFormatter)
	if v > 0 {
		leveled.SetLevel(logging.DEBUG, "")
	} else {
		leveled.SetLevel(logging.INFO, "")
	}
	logging.SetBackend(leveled)
}
