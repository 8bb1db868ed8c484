package imaging

// Command transforms encoded image bytes into other encoded image bytes.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory builds a command from configuration parameters
type CommandFactory func(params map[string]any) (Command, error)

type CommandConfig struct {
	Name   string
	Params map[string]any
}
