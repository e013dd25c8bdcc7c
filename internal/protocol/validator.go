package protocol

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxBodyBytes = 8192 // max message body size in bytes
	MaxBodyChars = 4000 // max message body character count
)

// ValidateMessageBody checks that a message body meets content requirements
// before it is admitted to the state actor.
func ValidateMessageBody(body string) error {
	if len(body) == 0 {
		return fmt.Errorf("message body is empty")
	}
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxBodyBytes)
	}
	if utf8.RuneCountInString(body) > MaxBodyChars {
		return fmt.Errorf("message exceeds %d character limit", MaxBodyChars)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
