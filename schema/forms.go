package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"
)

//go:embed forms/*.json
var formsFS embed.FS

var (
	formsOnce sync.Once
	forms     map[string]map[string]any
)

func loadForm(name string) map[string]any {
	formsOnce.Do(func() {
		forms = make(map[string]map[string]any)
		for _, n := range []string{"order", "booking"} {
			raw, err := formsFS.ReadFile("forms/" + n + ".json")
			if err != nil {
				panic(fmt.Sprintf("schema: missing form %s: %v", n, err))
			}
			var s map[string]any
			if err := json.Unmarshal(raw, &s); err != nil {
				panic(fmt.Sprintf("schema: invalid form %s: %v", n, err))
			}
			forms[n] = s
		}
	})
	return forms[name]
}

// OrderForm is the schema of an "order online" submission. Callers must not
// modify it.
func OrderForm() map[string]any { return loadForm("order") }

// BookingForm is the schema of a table booking submission. Callers must not
// modify it.
func BookingForm() map[string]any { return loadForm("booking") }

// ValidateJSON decodes raw as a JSON object and validates it.
func ValidateJSON(schema map[string]any, raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &FieldError{Path: "$", Message: "body is not a JSON object"}
	}
	if doc == nil {
		return nil, &FieldError{Path: "$", Message: "body is not a JSON object"}
	}
	return doc, Validate(schema, doc)
}
