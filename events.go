package main

import (
	"fmt"

	"murmur/log"
)

// consoleSink prints diagnostics and captions to the terminal and mirrors
// them into the log files.
type consoleSink struct{}

func (consoleSink) Diagnostic(msg string) {
	fmt.Printf("  %s\n", msg)
	log.Info(msg)
}

func (consoleSink) Caption(text string) {
	fmt.Printf("> %s\n", text)
	log.TranscriptionText(text)
}
