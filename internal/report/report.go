// Package report formats a backend's Stats snapshot the way the CLI
// prints it: logical vs. physical bytes, and either waste or sharing
// savings as both an absolute byte count and a percentage.
package report

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/biscuit-labs/kvcachesim/internal/kvbackend"
)

// printer formats integers with locale-aware thousands separators
// (e.g. "65,536" rather than "65536"), which matters here because
// arena and logical byte counts routinely run into the billions.
var printer = message.NewPrinter(language.English)

// Print writes a human-readable report for one backend's stats to w.
// name labels which backend produced st (e.g. "Monolithic" or
// "Paged+Prefix").
func Print(w io.Writer, name string, st kvbackend.Stats) {
	fmt.Fprintf(w, "%s:\n", name)
	printer.Fprintf(w, "  logical_bytes  = %d\n", st.LogicalBytes)
	printer.Fprintf(w, "  physical_bytes = %d\n", st.PhysicalBytes)

	switch {
	case st.PhysicalBytes > st.LogicalBytes:
		waste := st.PhysicalBytes - st.LogicalBytes
		ratio := percentOf(waste, st.PhysicalBytes)
		printer.Fprintf(w, "  waste_bytes    = %d (%.2f%%)\n", waste, ratio)
	case st.LogicalBytes > 0:
		saved := st.LogicalBytes - st.PhysicalBytes
		ratio := percentOf(saved, st.LogicalBytes)
		printer.Fprintf(w, "  memory_saved   = %d (%.2f%% due to sharing)\n", saved, ratio)
	default:
		fmt.Fprintln(w, "  memory_saved   = 0 (0.00%)")
	}
}

func percentOf(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100.0
}
