// Package prompts manages reasoning instructions per stage. Each stage has a
// built-in default; at most one named override per stage may be active.
package prompts

import (
	"strings"

	"github.com/google/uuid"
)

// Prompt is a named instruction override for a stage.
type Prompt struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Stage        Stage     `json:"stage"`
	Instructions string    `json:"instructions"`
	Description  string    `json:"description"`
	Active       bool      `json:"active"`
}

// CreateCommand carries the data needed to create a prompt override.
type CreateCommand struct {
	Name         string `json:"name"`
	Stage        Stage  `json:"stage"`
	Instructions string `json:"instructions"`
	Description  string `json:"description"`
}

// Validate trims the command and reports ErrEmpty or ErrInvalidStage.
func (c *CreateCommand) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Instructions = strings.TrimSpace(c.Instructions)
	c.Description = strings.TrimSpace(c.Description)

	if c.Name == "" || c.Instructions == "" {
		return ErrEmpty
	}
	_, err := ParseStage(string(c.Stage))
	return err
}

// UpdateCommand revises the text of an existing override. Nil fields are
// left unchanged; name and stage are fixed at creation.
type UpdateCommand struct {
	Instructions *string `json:"instructions"`
	Description  *string `json:"description"`
}

// Validate rejects an update that would blank the instructions.
func (c *UpdateCommand) Validate() error {
	if c.Instructions != nil {
		text := strings.TrimSpace(*c.Instructions)
		if text == "" {
			return ErrEmpty
		}
		c.Instructions = &text
	}
	if c.Description != nil {
		text := strings.TrimSpace(*c.Description)
		c.Description = &text
	}
	return nil
}
