package config

import (
	"fmt"
	"os"
	"strings"
)

// Exitf reports a startup failure on stderr and exits with status 1.
// Binaries call it before their log prefix is set.
func Exitf(format string, args ...any) {
	message := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
