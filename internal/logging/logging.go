// Package logging configures the process-wide apex/log handler.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup sets the level and output format ("text" or "json") of the default logger.
func Setup(level, format string) error {
	return setup(os.Stderr, level, format)
}

func setup(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		log.SetHandler(text.New(w))
	case "json":
		log.SetHandler(json.New(w))
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log.SetLevel(lvl)
	return nil
}
