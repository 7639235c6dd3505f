package main

import (
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/docker/go-units"

	apiv1 "github.com/zksecurity/zkvm-benchmarks/api/v1"
	"github.com/zksecurity/zkvm-benchmarks/pkg/lib"
)

func printStatusTable(w io.Writer, id string, st *apiv1.RunStatus, req *apiv1.TrackingRequest) {
	state, peak, outcome := "", "", ""
	if st != nil {
		state = st.State
		if st.Usage != nil {
			peak = units.BytesSize(float64(st.Usage.PeakBytes))
			outcome = describeOutcome(st.Usage.Outcome)
		}
	}
	cmd := ""
	if req != nil {
		all := append([]string{req.Path}, req.Args...)
		cmd = strings.TrimSpace(strings.Join(all, " "))
	}

	cols := []string{"ID", "STATE", "PEAK", "OUTCOME", "COMMAND"}
	row := []string{id, state, peak, outcome, cmd}
	widths := []int{36, 8, 4, 7, 7}
	for i := range widths {
		widths[i] = max(widths[i], len(cols[i]), len(row[i]))
	}

	seps := make([]string, len(widths))
	for i, wd := range widths {
		seps[i] = strings.Repeat("-", wd)
	}
	sep := "+-" + strings.Join(seps, "-+-") + "-+\n"
	line := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, c := range cells {
			padded[i] = pad(c, widths[i])
		}
		return "| " + strings.Join(padded, " | ") + " |\n"
	}

	fmt.Fprint(w, sep)
	fmt.Fprint(w, line(cols))
	fmt.Fprint(w, sep)
	fmt.Fprint(w, line(row))
	fmt.Fprint(w, sep)
	if st != nil && st.Error != "" {
		fmt.Fprintf(w, "error: %s\n", st.Error)
	}
}

func describeOutcome(o *apiv1.Outcome) string {
	if o == nil {
		return ""
	}
	switch o.Kind {
	case "exited":
		return fmt.Sprintf("exited(%d)", o.ExitCode)
	case "signaled":
		return fmt.Sprintf("signaled(%s)", syscall.Signal(o.Signal))
	case "launch_failed":
		return "launch failed"
	}
	return o.Kind
}

// printUsage writes the report of a local run.
func printUsage(w io.Writer, req lib.TrackingRequest, u *lib.MemoryUsage, timedOut bool) {
	result := u.Result.String()
	if timedOut {
		result += " (timed out)"
	}
	rows := [][2]string{
		{"command", strings.Join(append([]string{req.Path}, req.Args...), " ")},
		{"result", result},
	}
	if u.Result.Kind != lib.OutcomeLaunchFailed {
		rows = append(rows,
			[2]string{"peak memory", fmt.Sprintf("%s (%d bytes)", units.BytesSize(float64(u.Peak)), u.Peak)},
			[2]string{"baseline", units.BytesSize(float64(u.Baseline))},
			[2]string{"max rss", units.BytesSize(float64(u.MaxRSS))},
			[2]string{"duration", u.Duration.String()},
		)
		if u.OOMKills > 0 {
			rows = append(rows, [2]string{"oom kills", fmt.Sprint(u.OOMKills)})
		}
		if u.Pressure != nil && u.Pressure.Full != nil {
			rows = append(rows, [2]string{"memory pressure", fmt.Sprintf("full avg10=%.2f", u.Pressure.Full.Avg10)})
		}
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-16s %s\n", r[0]+":", r[1])
	}
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
