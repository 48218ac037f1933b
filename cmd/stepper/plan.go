// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/invowk/stepper/pkg/stepfile"
)

// printPlan lists the steps of sf in the order they will run.
func printPlan(w io.Writer, sf *stepfile.Stepfile) {
	fmt.Fprintf(w, "%s %s\n", TitleStyle.Render("Plan:"), sf.FilePath)
	fmt.Fprintf(w, "%s\n\n", SubtitleStyle.Render(fmt.Sprintf("%d step(s), starting in %s", len(sf.Steps), sf.InitialWorkDir())))

	width := 0
	for _, s := range sf.Steps {
		width = max(width, len(s.Kind))
	}
	for i, s := range sf.Steps {
		detail := strings.TrimSpace(strings.TrimPrefix(s.Describe(), string(s.Kind)))
		kind := string(s.Kind) + strings.Repeat(" ", width-len(s.Kind))
		fmt.Fprintf(w, "%s  %s  %s\n", stepIndexStyle.Render(strconv.Itoa(i+1)), CmdStyle.Render(kind), detail)
	}
}
