package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	textclipboard "github.com/atotto/clipboard"
	imageclipboard "golang.design/x/clipboard"
)

var ErrUnavailable = errors.New("system clipboard is unavailable")

// System writes to the clipboard of the machine running the server.
// Images go through golang.design/x/clipboard, text through atotto/clipboard
// which shells out to the platform's clipboard tools.
type System struct {
	once    sync.Once
	initErr error
}

func NewSystem() *System {
	return &System{}
}

func (s *System) init() error {
	s.once.Do(func() {
		if err := imageclipboard.Init(); err != nil {
			s.initErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	})
	return s.initErr
}

// WriteImage places PNG bytes on the clipboard.
func (s *System) WriteImage(ctx context.Context, png []byte) error {
	if err := s.init(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// The returned channel only reports when another application takes the
	// clipboard over, it does not signal completion.
	_ = imageclipboard.Write(imageclipboard.FmtImage, png)
	return nil
}

func (s *System) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if textclipboard.Unsupported {
		return ErrUnavailable
	}
	if err := textclipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write text to clipboard: %w", err)
	}
	return nil
}
