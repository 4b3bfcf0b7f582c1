package xdo

import (
	"fmt"
	"log/slog"

	"github.com/atotto/clipboard"
)

// Clipboard moves text between kiauto and KiCad's file dialogs.
type Clipboard interface {
	Store(text string) error
	Retrieve() (string, error)
}

// SystemClipboard uses the X selection of the current DISPLAY via xclip or xsel.
type SystemClipboard struct{}

func (SystemClipboard) Store(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard: no xclip or xsel available")
	}
	slog.Debug("clipboard store", slog.String("text", text))
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard store: %w", err)
	}
	return nil
}

func (SystemClipboard) Retrieve() (string, error) {
	if clipboard.Unsupported {
		return "", fmt.Errorf("clipboard: no xclip or xsel available")
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("clipboard retrieve: %w", err)
	}
	slog.Debug("clipboard retrieve", slog.String("text", text))
	return text, nil
}
