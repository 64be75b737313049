package sweep

import (
	"fmt"
	"io"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/fatih/color"
)

type FailedPoint struct {
	Point Point
	Err   error
}

// Summary describes how a sweep went.
type Summary struct {
	Points          int
	Succeeded       int
	Failed          []FailedPoint
	CleanupFailures []artifact.Outcome
	Aborted         bool
}

func (s *Summary) Print(w io.Writer) {
	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)
	warn := color.New(color.FgYellow)

	ok.Fprintf(w, "%d/%d points succeeded\n", s.Succeeded, s.Points)
	if s.Aborted {
		bad.Fprintln(w, "sweep aborted early")
	}
	if len(s.Failed) > 0 {
		bad.Fprintf(w, "%d points failed:\n", len(s.Failed))
		for _, f := range s.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.Point, f.Err)
		}
	}
	if len(s.CleanupFailures) > 0 {
		warn.Fprintf(w, "%d artifacts could not be cleaned up:\n", len(s.CleanupFailures))
		for _, o := range s.CleanupFailures {
			fmt.Fprintf(w, "  %s\n", o.Err)
		}
	}
}
