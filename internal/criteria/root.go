package criteria

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rpattn/propspec/internal/domain"
)

// ErrInvalidPath is returned when a property path cannot be resolved against a Root.
var ErrInvalidPath = errors.New("invalid property path")

var segmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// Mapping describes how logical property names map onto a table.
type Mapping struct {
	Table string
	// Columns maps logical names to physical columns.
	Columns map[string]string
	// Properties is the JSONB column used for every name not in Columns.
	// When empty, unknown names are rejected.
	Properties string
}

// Root is the queried table as seen from predicates.
type Root struct {
	mapping Mapping
	alias   string
}

// NewRoot returns a root over mapping addressed through alias.
func NewRoot(mapping Mapping, alias string) *Root {
	return &Root{mapping: mapping, alias: alias}
}

// Alias returns the table alias.
func (r *Root) Alias() string { return r.alias }

// Mapping returns the table mapping.
func (r *Root) Mapping() Mapping { return r.mapping }

// Get resolves a property path. Mapped columns win; anything else is read
// from the JSONB properties column, with dotted paths walking nested objects.
func (r *Root) Get(path string) (Expression, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Expression{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if column, ok := r.mapping.Columns[path]; ok {
		return Expression{sql: r.qualify(column), path: path}, nil
	}
	if r.mapping.Properties == "" {
		return Expression{}, fmt.Errorf("%w: %q is not a column of %s", ErrInvalidPath, path, r.mapping.Table)
	}

	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if !segmentPattern.MatchString(segment) {
			return Expression{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}

	column := r.qualify(r.mapping.Properties)
	if len(segments) == 1 {
		return Expression{sql: fmt.Sprintf("%s ->> %s", column, quoteLiteral(path)), path: path, json: true}, nil
	}
	return Expression{
		sql:  fmt.Sprintf("%s #>> %s", column, quoteLiteral("{"+strings.Join(segments, ",")+"}")),
		path: path,
		json: true,
	}, nil
}

func (r *Root) qualify(column string) string {
	if r.alias == "" {
		return column
	}
	return r.alias + "." + column
}

// Expression is a value-producing SQL fragment.
type Expression struct {
	sql  string
	path string
	json bool
}

// SQL returns the rendered expression.
func (e Expression) SQL() string { return e.sql }

// Path returns the property path the expression was resolved from.
func (e Expression) Path() string { return e.path }

// IsJSON reports whether the expression reads JSONB text.
func (e Expression) IsJSON() bool { return e.json }

// As casts JSONB text to the SQL type backing t. Column expressions keep their
// native type.
func (e Expression) As(t domain.FieldType) Expression {
	if !e.json {
		return e
	}
	sqlType := ""
	switch t {
	case domain.FieldTypeInteger:
		sqlType = "integer"
	case domain.FieldTypeLong:
		sqlType = "bigint"
	case domain.FieldTypeNumber:
		sqlType = "numeric"
	case domain.FieldTypeDate:
		sqlType = "timestamptz"
	case domain.FieldTypeBoolean:
		sqlType = "boolean"
	default:
		return e
	}
	out := e
	out.sql = fmt.Sprintf("(%s)::%s", e.sql, sqlType)
	out.json = false
	return out
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
