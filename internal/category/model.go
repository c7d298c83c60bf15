package category

import (
	"fmt"
	"strings"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

const maxNameLen = 100

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Input struct {
	Name string `json:"name"`
}

func (in *Input) Validate() error {
	in.Name = strings.TrimSpace(in.Name)

	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "is required"
	} else if len(in.Name) > maxNameLen {
		fields["name"] = fmt.Sprintf("must be at most %d characters", maxNameLen)
	}
	if len(fields) > 0 {
		return apperr.Invalid(fields)
	}

	return nil
}
