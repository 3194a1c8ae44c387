package registry

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxSchemaVariables  = 100
	maxVariableFields   = 200
	maxIdentifierLength = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// celReservedWords cannot be used as a schema variable or field name since
// they collide with CEL syntax.
var celReservedWords = map[string]bool{
	"true": true, "false": true, "null": true,
	"if": true, "else": true, "for": true, "while": true, "break": true, "continue": true, "return": true,
	"var": true, "let": true, "const": true, "function": true,
	"in": true, "as": true, "import": true, "package": true, "namespace": true, "loop": true, "void": true,
}

var validFieldTypes = map[string]bool{
	"int": true, "int64": true, "float64": true, "string": true,
	"bool": true, "bytes": true, "timestamp": true, "duration": true,
}

// validateSchema checks a namespace schema against the constraints CEL
// environment construction and the identifier grammar impose: non-empty,
// bounded in size, and built from valid CEL identifiers and field types.
func validateSchema(schema Schema) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema cannot be empty, must declare at least one variable")
	}
	if len(schema) > maxSchemaVariables {
		return fmt.Errorf("schema declares %d variables, maximum allowed is %d", len(schema), maxSchemaVariables)
	}

	for name, fields := range schema {
		if err := validateIdentifier(name); err != nil {
			return fmt.Errorf("invalid variable name %q: %w", name, err)
		}
		if len(fields) > maxVariableFields {
			return fmt.Errorf("variable %q declares %d fields, maximum allowed is %d", name, len(fields), maxVariableFields)
		}

		for fieldName, typeName := range fields {
			if err := validateIdentifier(fieldName); err != nil {
				return fmt.Errorf("invalid field name %q in variable %q: %w", fieldName, name, err)
			}
			if typeName == "" {
				return fmt.Errorf("field %q in variable %q has empty type name", fieldName, name)
			}
			if strings.TrimSpace(typeName) != typeName {
				return fmt.Errorf("field %q in variable %q has type with leading/trailing whitespace: %q", fieldName, name, typeName)
			}
			if !validFieldTypes[typeName] {
				return fmt.Errorf("field %q in variable %q has invalid type %q (must be one of: int, int64, float64, string, bool, bytes, timestamp, duration)", fieldName, name, typeName)
			}
		}
	}

	return nil
}

func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	if celReservedWords[name] {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}
