package grading

import (
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/openedu-labs/qfeed-api/internal/models"
)

// RenderFeedback interpolates the sandbox-updated context into each feedback
// fragment. Templates render without escaping; the nested user object is
// extended with the requester's display name fields before substitution.
// Fields a fragment references but the context does not carry render as the
// empty string. Fragments that render to whitespace only are dropped; the
// rest join in order.
func RenderFeedback(data map[string]any, fragments []string, student models.Student) (string, error) {
	scope := renderScope(data, student)

	rendered := make([]string, 0, len(fragments))
	for i, fragment := range fragments {
		tmpl, err := template.New("fragment").Option("missingkey=zero").Parse(fragment)
		if err != nil {
			return "", fmt.Errorf("parse feedback fragment %d: %w", i, err)
		}

		fillMissingFields(scope, tmpl.Tree.Root)

		var builder strings.Builder
		if err := tmpl.Execute(&builder, scope); err != nil {
			return "", fmt.Errorf("render feedback fragment %d: %w", i, err)
		}

		text := builder.String()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rendered = append(rendered, text)
	}

	return strings.Join(rendered, "\n"), nil
}

// renderScope copies the context data and layers the requester's name fields
// onto the nested user object without mutating the sandbox result.
func renderScope(data map[string]any, student models.Student) map[string]any {
	scope := make(map[string]any, len(data)+1)
	for key, value := range data {
		scope[key] = value
	}

	user := map[string]any{}
	if nested, ok := scope["user"].(map[string]any); ok {
		for key, value := range nested {
			user[key] = value
		}
	}
	user["firstName"] = student.FirstName
	user["lastName"] = student.LastName
	user["name"] = student.DisplayName()
	scope["user"] = user

	return scope
}

// fillMissingFields walks the parsed fragment and defaults every printed
// field path the scope lacks to the empty string, so missing keys render as
// nothing. Branch pipes are left alone: missingkey=zero already makes an
// absent key falsy in {{if}} and iterate zero times in {{range}}.
func fillMissingFields(scope map[string]any, node parse.Node) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, item := range n.Nodes {
			fillMissingFields(scope, item)
		}
	case *parse.ActionNode:
		for _, cmd := range n.Pipe.Cmds {
			for _, arg := range cmd.Args {
				if field, ok := arg.(*parse.FieldNode); ok {
					defaultFieldPath(scope, field.Ident)
				}
			}
		}
	case *parse.IfNode:
		fillMissingFields(scope, n.List)
		fillMissingFields(scope, n.ElseList)
	case *parse.WithNode:
		fillMissingFields(scope, n.List)
		fillMissingFields(scope, n.ElseList)
	case *parse.RangeNode:
		fillMissingFields(scope, n.List)
		fillMissingFields(scope, n.ElseList)
	}
}

// defaultFieldPath ensures the dotted path resolves, creating intermediate
// maps as needed. Paths crossing an existing non-map value are left for the
// template engine to handle.
func defaultFieldPath(scope map[string]any, path []string) {
	current := scope
	for i, key := range path {
		value, ok := current[key]
		if i == len(path)-1 {
			if !ok || value == nil {
				current[key] = ""
			}
			return
		}

		next, isMap := value.(map[string]any)
		if !isMap {
			if ok {
				return
			}
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
}
