// Package cmdlog provides styled logging helpers for interactive SCPI
// sessions with the scope.
package cmdlog

import (
	"log"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gotmc/magnova"
)

var (
	CmdStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	RespStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	WarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

func isASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		return r < 32 && r != '\t' && r != '\n' && r != '\r' || r > 127
	})
}

// PrettyFuncs returns logging wrappers around the scope's query, binary
// query, and command operations. Errors are logged, not returned; these are
// for interactive exploration, not production flows.
func PrettyFuncs(scope *magnova.Scope) (
	query func(string) string,
	bquery func(string) []byte,
	cmd func(string),
) {
	query = func(q string) string {
		s, err := scope.Query(q)
		if err != nil {
			log.Printf("query %s: error %s", CmdStyle.Render(q), err)
			return s
		}
		if len(s) == 0 {
			log.Printf("%s: %s", CmdStyle.Render(q), WarnStyle.Render("<no response>"))
			return s
		}
		if isASCII(s) {
			log.Printf("%s: [%d] %s", CmdStyle.Render(q), len(s), RespStyle.Render(s))
		} else {
			log.Printf("%s: [%d] % 2x", CmdStyle.Render(q), len(s), []byte(s))
		}
		return s
	}

	bquery = func(q string) []byte {
		b, err := scope.QueryBinary(q)
		if err != nil {
			log.Printf("binary query %s: error %s", CmdStyle.Render(q), err)
			return nil
		}
		if len(b) <= 32 {
			log.Printf("%s: [%d] % 2x", CmdStyle.Render(q), len(b), b)
		} else {
			log.Printf("%s: [%d bytes]", CmdStyle.Render(q), len(b))
		}
		return b
	}

	cmd = func(c string) {
		if err := scope.Command(c); err != nil {
			log.Printf("cmd %s: error %s", CmdStyle.Render(c), err)
		} else {
			log.Printf("%s()", CmdStyle.Render(c))
		}
	}
	return query, bquery, cmd
}
