// Package validate checks user input before it reaches a collection.
// Lengths are counted in runes.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tonehq/tonesync/pkg/constants"
)

const (
	TaskTitleMaxLength       = 255
	TaskDescriptionMaxLength = 5000
	ListNameMaxLength        = 100
	ProjectNameMaxLength     = 100
	WorkspaceNameMaxLength   = 100
	DisplayNameMaxLength     = 50
)

// Error describes a rejected input. It matches constants.ErrInvalidInput.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error {
	return constants.ErrInvalidInput
}

func required(field, value string, max int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return &Error{Field: field, Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > max {
		return &Error{Field: field, Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func TaskTitle(title string) error {
	return required("title", title, TaskTitleMaxLength)
}

// TaskDescription accepts an empty description.
func TaskDescription(description string) error {
	if utf8.RuneCountInString(description) > TaskDescriptionMaxLength {
		return &Error{Field: "description", Reason: fmt.Sprintf("must be at most %d characters", TaskDescriptionMaxLength)}
	}
	return nil
}

func ListName(name string) error {
	return required("list name", name, ListNameMaxLength)
}

func ProjectName(name string) error {
	return required("project name", name, ProjectNameMaxLength)
}

func WorkspaceName(name string) error {
	return required("workspace name", name, WorkspaceNameMaxLength)
}

func DisplayName(name string) error {
	return required("display name", name, DisplayNameMaxLength)
}
