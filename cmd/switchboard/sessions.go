package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/transport/rpc"
)

func newSessionsCmd() *cobra.Command {
	var (
		server string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := rpc.NewClient(http.DefaultClient, server)
			infos, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return writeSessions(cmd.OutOrStdout(), infos, "")
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer(), "server base URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// writeSessions prints a session table, marking active with '*'.
func writeSessions(w io.Writer, infos []dispatch.SessionInfo, active string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tSTATE\tFAILURES\tLAST ERROR")

	for _, info := range infos {
		mark := ""
		if info.Name == active {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", mark, info.Name, state(info), info.Failures, info.LastError)
	}
	return tw.Flush()
}

func state(info dispatch.SessionInfo) string {
	switch {
	case info.GaveUp:
		return "gave up"
	case info.Live:
		return "live"
	default:
		return "restarting"
	}
}
