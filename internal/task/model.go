package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
)

// Task belongs to exactly one owner, fixed at creation. OwnerID is never
// reassigned and never taken from client input.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"createdAt"`
	OwnerID     string    `json:"ownerId"`
	CategoryID  string    `json:"categoryId"`
}

// Input carries the client-writable fields for create and update.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CategoryID  string `json:"categoryId"`
}

// Validate returns field errors as an ErrInvalidInput, or nil.
func (in *Input) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.CategoryID = strings.TrimSpace(in.CategoryID)

	fields := map[string]string{}
	if in.Title == "" {
		fields["title"] = "is required"
	} else if len(in.Title) > maxTitleLen {
		fields["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLen)
	}
	if len(in.Description) > maxDescriptionLen {
		fields["description"] = fmt.Sprintf("must be at most %d characters", maxDescriptionLen)
	}
	if in.CategoryID == "" {
		fields["categoryId"] = "is required"
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields)
	}

	return nil
}
