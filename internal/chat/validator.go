package chat

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/mpchat/client/internal/errs"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// ValidateMessage checks that a chat message meets content requirements.
// Failures wrap errs.ErrInvalidIntent.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return errors.Wrap(errs.ErrInvalidIntent, "message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return errors.Wrapf(errs.ErrInvalidIntent, "message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return errors.Wrap(errs.ErrInvalidIntent, "message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return errors.Wrapf(errs.ErrInvalidIntent, "message exceeds %d character limit", MaxTextChars)
	}
	return nil
}
