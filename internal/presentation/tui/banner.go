package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the lockstep banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{" _            _        _", "#818cf8"},
		{"| | ___   ___| | _____| |_ ___ _ __", "#a78bfa"},
		{"| |/ _ \\ / __| |/ / __| __/ _ \\ '_ \\", "#c084fc"},
		{"| | (_) | (__|   <\\__ \\ ||  __/ |_) |", "#e879f9"},
		{"|_|\\___/ \\___|_|\\_\\___/\\__\\___| .__/", "#f472b6"},
		{"                              |_|", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, out.String("  "+v).Faint())
	}
	fmt.Fprintln(w)
}
