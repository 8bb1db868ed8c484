package imaging

import (
	"fmt"
	"log/slog"
	"time"
)

// CommandInvoker executes a sequence of commands on image data
type CommandInvoker struct {
	commands []Command
}

func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{commands: commands}
}

// Execute feeds the output of each command into the next one.
func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	start := time.Now()
	currentData := imageData

	for idx, command := range i.commands {
		processedData, err := command.Execute(currentData)
		if err != nil {
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}
		currentData = processedData
	}

	slog.Debug("image pipeline completed",
		"command_count", len(i.commands),
		"input_size_bytes", len(imageData),
		"output_size_bytes", len(currentData),
		"duration_ms", time.Since(start).Milliseconds())
	return currentData, nil
}

// ExecuteCommands builds the configured commands from DefaultRegistry and runs them in order.
func ExecuteCommands(imageData []byte, configs []CommandConfig) ([]byte, error) {
	commands := make([]Command, 0, len(configs))
	for _, config := range configs {
		command, err := DefaultRegistry.Create(config.Name, config.Params)
		if err != nil {
			return nil, err
		}
		commands = append(commands, command)
	}
	return NewCommandInvoker(commands).Execute(imageData)
}
