package registry

import (
	"strings"
	"testing"
)

func TestValidateSchema_EmptySchema(t *testing.T) {
	err := validateSchema(Schema{})
	if err == nil {
		t.Error("expected error for empty schema, got nil")
	}
	if err != nil && !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected error message about empty schema, got: %v", err)
	}
}

func TestValidateSchema_TooManyVariables(t *testing.T) {
	schema := Schema{}
	for i := 0; i < 101; i++ {
		name := "var" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		schema[name] = map[string]string{"field": "int"}
	}

	err := validateSchema(schema)
	if err == nil {
		t.Error("expected error for too many variables (101), got nil")
	}
	if err != nil && !strings.Contains(err.Error(), "100") {
		t.Errorf("expected error message about max 100 variables, got: %v", err)
	}
}

func TestValidateSchema_TooManyFields(t *testing.T) {
	fields := make(map[string]string)
	for i := 0; i < 201; i++ {
		name := "field" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		fields[name] = "int"
	}

	err := validateSchema(Schema{"customer": fields})
	if err == nil {
		t.Error("expected error for too many fields (201), got nil")
	}
	if err != nil && !strings.Contains(err.Error(), "200") {
		t.Errorf("expected error message about max 200 fields, got: %v", err)
	}
}

func TestValidateSchema_ValidTypes(t *testing.T) {
	for _, typeName := range []string{"int", "int64", "float64", "string", "bool", "bytes", "timestamp", "duration"} {
		schema := Schema{"customer": {"field": typeName}}
		if err := validateSchema(schema); err != nil {
			t.Errorf("expected valid type %s to pass validation, got error: %v", typeName, err)
		}
	}
}

func TestValidateSchema_InvalidTypes(t *testing.T) {
	for _, typeName := range []string{"varchar", "date", "number", "array", "object", "CustomType"} {
		schema := Schema{"customer": {"field": typeName}}
		if err := validateSchema(schema); err == nil {
			t.Errorf("expected error for invalid type %s, got nil", typeName)
		}
	}
}

func TestValidateSchema_CaseSensitiveTypes(t *testing.T) {
	for _, typeName := range []string{"String", "INT", "Bool"} {
		schema := Schema{"customer": {"field": typeName}}
		if err := validateSchema(schema); err == nil {
			t.Errorf("expected error for incorrect case type %s, got nil", typeName)
		}
	}
}

func TestValidateSchema_TypeWithWhitespace(t *testing.T) {
	for _, typeName := range []string{" int", "int ", "\tint"} {
		schema := Schema{"customer": {"field": typeName}}
		if err := validateSchema(schema); err == nil {
			t.Errorf("expected error for type with whitespace %q, got nil", typeName)
		}
	}
}

func TestValidateIdentifier_ValidFormats(t *testing.T) {
	for _, id := range []string{"customer", "_private", "customer123", "customer_name", "_", "a", "CamelCase"} {
		if err := validateIdentifier(id); err != nil {
			t.Errorf("expected valid identifier %q to pass validation, got error: %v", id, err)
		}
	}
}

func TestValidateIdentifier_InvalidFormats(t *testing.T) {
	for _, id := range []string{"123customer", "customer-name", "customer.name", "customer name", "customer@x"} {
		if err := validateIdentifier(id); err == nil {
			t.Errorf("expected error for invalid identifier %q, got nil", id)
		}
	}
}

func TestValidateIdentifier_ReservedKeywords(t *testing.T) {
	for _, keyword := range []string{"true", "false", "if", "else", "return", "var", "namespace"} {
		err := validateIdentifier(keyword)
		if err == nil {
			t.Errorf("expected error for reserved keyword %q, got nil", keyword)
		}
		if err != nil && !strings.Contains(err.Error(), "reserved") {
			t.Errorf("expected error message about reserved keyword for %q, got: %v", keyword, err)
		}
	}
}

func TestValidateIdentifier_LengthLimits(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		shouldErr bool
	}{
		{"empty", "", true},
		{"single char", "a", false},
		{"max length 100", strings.Repeat("a", 100), false},
		{"too long 101", strings.Repeat("a", 101), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIdentifier(tt.id)
			if tt.shouldErr && err == nil {
				t.Errorf("expected error for %s, got nil", tt.name)
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("expected no error for %s, got: %v", tt.name, err)
			}
		})
	}
}

func TestValidateSchema_ValidCompleteSchema(t *testing.T) {
	schema := Schema{
		"customer": {"age": "int", "name": "string", "tier": "string", "isActive": "bool"},
		"order":    {"amount": "float64", "currency": "string", "placedAt": "timestamp"},
	}
	if err := validateSchema(schema); err != nil {
		t.Errorf("expected valid complete schema to pass, got error: %v", err)
	}
}

func TestValidateSchema_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("validateSchema panicked on input: %v", r)
		}
	}()

	testCases := []Schema{nil, {}, {"": {}}, {"customer": nil}}
	for _, schema := range testCases {
		_ = validateSchema(schema)
	}
}

func TestValidateSchema_BoundaryConditions(t *testing.T) {
	t.Run("exactly 100 variables", func(t *testing.T) {
		schema := Schema{}
		for i := 0; i < 100; i++ {
			name := "var" + string(rune('a'+i%26)) + string(rune('0'+i/26))
			schema[name] = map[string]string{"field": "int"}
		}
		if err := validateSchema(schema); err != nil {
			t.Errorf("expected 100 variables to be valid, got error: %v", err)
		}
	})

	t.Run("exactly 200 fields", func(t *testing.T) {
		fields := make(map[string]string)
		for i := 0; i < 200; i++ {
			name := "field" + string(rune('a'+i%26)) + string(rune('0'+i/26))
			fields[name] = "int"
		}
		if err := validateSchema(Schema{"customer": fields}); err != nil {
			t.Errorf("expected 200 fields to be valid, got error: %v", err)
		}
	})
}
