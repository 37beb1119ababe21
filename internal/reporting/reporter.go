// File: internal/reporting/reporter.go
// Description: Renders a terminal session to the configured output as
// Markdown or JSON. The reporter is the human-facing artifact of a run;
// the persisted store row is the machine-facing one.

package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// Reporter writes one finished session to an output.
type Reporter interface {
	// Write renders the session.
	Write(session *schemas.Session) error
	// Close finalizes the report and releases the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format and output path. An empty
// path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			writer.Close()
		}
	}

	switch format {
	case "markdown", "md", "":
		return NewMarkdownReporter(writer), nil
	case "json":
		return NewJSONReporter(writer), nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
