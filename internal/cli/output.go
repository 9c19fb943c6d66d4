package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Terminal styles. fatih/color drops the escapes when stdout is not a TTY.
var (
	brand  = color.New(color.FgHiCyan, color.Bold)
	subtle = color.New(color.FgHiBlack)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed, color.Bold)
)

// PrintError writes err for a human reader.
func PrintError(w io.Writer, err error) {
	bad.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}
