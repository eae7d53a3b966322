package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

func printBanner(w io.Writer, version string, s Settings, connectors []string) {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	label := color.New(color.FgHiBlack).SprintFunc()

	api := s.APIHost
	if s.NoAPI {
		api = "disabled"
	}
	fmt.Fprintf(w, "%s %s\n", title("eventgrid"), version)
	fmt.Fprintf(w, "  %s %d\n", label("mailbox:   "), s.MailboxCapacity)
	fmt.Fprintf(w, "  %s %s\n", label("api:       "), api)
	fmt.Fprintf(w, "  %s %s\n", label("connectors:"), strings.Join(connectors, ", "))
	if len(s.Artefacts) > 0 {
		fmt.Fprintf(w, "  %s %s\n", label("artefacts: "), strings.Join(s.Artefacts, ", "))
	}
}
