package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"flowq/internal/api"
	"flowq/internal/queue"
)

// writeJSON encodes v to the command's stdout. Commands pass the HTTP API
// DTOs so scripts see the same shapes from the CLI and the daemon.
func writeJSON(cmd *cobra.Command, v any) error {
	return encodeJSON(cmd.OutOrStdout(), v)
}

// writeJSONError reports err in the API's error body, with the error kind
// that decides the HTTP status.
func writeJSONError(w io.Writer, err error) error {
	return encodeJSON(w, api.ErrorResponse{Error: err.Error(), Kind: string(queue.ErrorKind(err))})
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// jsonRequested reports whether --json was set on cmd or any parent.
func jsonRequested(cmd *cobra.Command) bool {
	flag := cmd.Flags().Lookup("json")
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup("json")
	}
	return flag != nil && flag.Value.String() == "true"
}
