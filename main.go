package main

import (
	"github.com/Revaiowo/streamRTC/cmd"
	"github.com/Revaiowo/streamRTC/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
