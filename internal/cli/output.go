package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// formatter writes either indented JSON or the text rendering supplied by a command.
type formatter struct {
	format string
	w      io.Writer
}

func (f formatter) write(data any, text func(w io.Writer)) error {
	if f.format == "json" {
		enc := json.NewEncoder(f.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(f.w)
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
