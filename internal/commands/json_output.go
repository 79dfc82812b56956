package commands

import (
	"encoding/json"
	"fmt"
	"io"
)

func marshalJSONOrFallback(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		return string(data) + "\n"
	}

	// --json callers always get valid JSON.
	fallback, fallbackErr := json.Marshal(map[string]string{
		"error": fmt.Sprintf("failed to marshal JSON output: %v", err),
	})
	if fallbackErr != nil {
		return "{}\n"
	}
	return string(fallback) + "\n"
}

// printOutput writes either the JSON form of v or the human text.
func printOutput(w io.Writer, v any, asJSON bool, human func() string) {
	if asJSON {
		fmt.Fprint(w, marshalJSONOrFallback(v))
		return
	}
	fmt.Fprint(w, human())
}
