package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/dustin/go-humanize"
)

// FormatInfo renders matrix info for the terminal, the prometheus metrics are
// appended if withMetrics is set
func FormatInfo(info matrix.Info, withMetrics bool) string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	features := make([]string, len(info.SupportedFeatures))
	for i, f := range info.SupportedFeatures {
		features[i] = f.String()
	}

	addSection("Matrix")
	addField("Mode", string(info.Mode))
	if info.Path != "" {
		addField("Path", info.Path)
	}
	addField("Features", strings.Join(features, ", "))
	addField("Resident Rows", humanize.Comma(int64(info.ResidentRows)))
	addField("Resident Entries", humanize.Comma(int64(info.ResidentEntries)))
	addField("Median Row Length", strconv.Itoa(info.MedianRowLength))

	if c := info.Cache; c != nil {
		hitRate := 0.0
		if c.Hits+c.Misses > 0 {
			hitRate = float64(c.Hits) / float64(c.Hits+c.Misses) * 100
		}
		addSection("Row Cache")
		addField("Capacity", humanize.Comma(int64(c.Capacity))+" rows")
		addField("Resident", humanize.Comma(int64(c.Resident))+" rows")
		addField("Dirty", humanize.Comma(int64(c.Dirty))+" rows")
		addField("Hit Rate", fmt.Sprintf("%.1f%% (%s hits, %s misses)", hitRate, humanize.Comma(int64(c.Hits)), humanize.Comma(int64(c.Misses))))
		addField("Evictions", humanize.Comma(int64(c.Evictions)))
		addField("Loads / Stores", fmt.Sprintf("%s / %s", humanize.Comma(int64(c.Loads)), humanize.Comma(int64(c.Stores))))
	}

	if f := info.File; f != nil {
		addSection("Backing File")
		addField("ID", f.ID)
		addField("Stored Rows", humanize.Comma(int64(f.Rows)))
		addField("Size", humanize.IBytes(uint64(f.TotalBytes)))
		addField("Live Data", humanize.IBytes(uint64(f.LiveBytes)))
		addField("Codec", f.Codec)
	}

	if withMetrics && info.Metrics != "" {
		addSection("Metrics")
		sb.WriteString(info.Metrics)
	}

	return sb.String()
}
