package main

import (
	"log/slog"

	"github.com/BioHazard786/warpcall/cli/cmd"
	"github.com/BioHazard786/warpcall/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	cmd.Execute()
}
