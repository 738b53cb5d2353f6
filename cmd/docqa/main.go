// Command docqa answers questions over a set of PDF and text documents.
// It indexes the documents into a persisted vector collection, retrieves the
// chunks closest to each question and asks an LLM to answer from them, either
// in an interactive loop, one-shot, or over an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
