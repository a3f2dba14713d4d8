/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: schema.go
Description: Args validation for fanalyzer. Registered analyzers may describe their
tunables with a JSON schema; configured args are checked against it before any file
is processed so configuration mistakes surface at startup.
*/

package registry

import (
	"fmt"
	"strings"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every schema violation found in one args record
type ValidationError struct {
	Tag        interfaces.Tag
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s args: %s", e.Tag, strings.Join(e.Violations, "; "))
}

// Validate checks args against the schema registered for their tag.
// Entries without a schema accept any tunables.
func (r *Registry) Validate(args *interfaces.Args) error {
	tag, err := interfaces.ArgsTag(args)
	if err != nil {
		return err
	}

	entry, ok := r.Entry(tag)
	if !ok {
		return fmt.Errorf("%s: %w", tag, ErrUnregisteredTag)
	}
	if entry.Schema == "" {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(entry.Schema)
	inputLoader := gojsonschema.NewGoLoader(args.Fields())

	result, err := gojsonschema.Validate(schemaLoader, inputLoader)
	if err != nil {
		return fmt.Errorf("failed to validate %s args: %w", tag, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Tag: tag}
	for _, re := range result.Errors() {
		verr.Violations = append(verr.Violations, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	return verr
}
