package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ErrInvalidExpression is returned when a filter expression cannot be parsed.
var ErrInvalidExpression = errors.New("invalid property filter expression")

// ErrInvalidValue is returned when a match value cannot be converted to the
// filter's field type.
var ErrInvalidValue = errors.New("invalid property filter value")

const (
	// PropertyNameSeparator splits several property names in one expression.
	PropertyNameSeparator = "_OR_"
	// ValueSeparator splits several match values.
	ValueSeparator = ","

	expressionSeparator = "_"
)

// Restriction names the comparison a property filter applies.
type Restriction string

const (
	RestrictionEQ    Restriction = "EQ"
	RestrictionNE    Restriction = "NE"
	RestrictionGT    Restriction = "GT"
	RestrictionGE    Restriction = "GE"
	RestrictionLT    Restriction = "LT"
	RestrictionLE    Restriction = "LE"
	RestrictionLike  Restriction = "LIKE"
	RestrictionLLike Restriction = "LLIKE"
	RestrictionRLike Restriction = "RLIKE"
	RestrictionIn    Restriction = "IN"
	RestrictionNIn   Restriction = "NIN"
)

var knownRestrictions = map[Restriction]struct{}{
	RestrictionEQ: {}, RestrictionNE: {},
	RestrictionGT: {}, RestrictionGE: {}, RestrictionLT: {}, RestrictionLE: {},
	RestrictionLike: {}, RestrictionLLike: {}, RestrictionRLike: {},
	RestrictionIn: {}, RestrictionNIn: {},
}

// IsCollection reports whether the restriction consumes every match value at once.
func (r Restriction) IsCollection() bool {
	return r == RestrictionIn || r == RestrictionNIn
}

// FieldType is the value type a filter compares against.
type FieldType byte

const (
	FieldTypeString  FieldType = 'S'
	FieldTypeInteger FieldType = 'I'
	FieldTypeLong    FieldType = 'L'
	FieldTypeNumber  FieldType = 'N'
	FieldTypeDate    FieldType = 'D'
	FieldTypeBoolean FieldType = 'B'
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeString:
		return "string"
	case FieldTypeInteger:
		return "integer"
	case FieldTypeLong:
		return "long"
	case FieldTypeNumber:
		return "number"
	case FieldTypeDate:
		return "date"
	case FieldTypeBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("FieldType(%c)", byte(t))
	}
}

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeLong, FieldTypeNumber, FieldTypeDate, FieldTypeBoolean:
		return true
	}
	return false
}

// decimalPattern accepts plain base-10 integers. cast parses with base 0, so
// "010" and "0x10" have to be rejected before they reach it.
var decimalPattern = regexp.MustCompile(`^[+-]?(0|[1-9][0-9]*)$`)

// Convert turns a raw match value into the Go value for this field type.
// Only strings may be empty.
func (t FieldType) Convert(raw string) (any, error) {
	if t == FieldTypeString {
		return raw, nil
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty %s value", ErrInvalidValue, t)
	}

	var (
		value any
		err   error
	)
	switch t {
	case FieldTypeInteger:
		if err = checkDecimal(trimmed, 32); err == nil {
			value, err = cast.ToInt32E(trimmed)
		}
	case FieldTypeLong:
		if err = checkDecimal(trimmed, 64); err == nil {
			value, err = cast.ToInt64E(trimmed)
		}
	case FieldTypeNumber:
		value, err = cast.ToFloat64E(trimmed)
	case FieldTypeDate:
		value, err = cast.ToTimeE(trimmed)
	case FieldTypeBoolean:
		value, err = cast.ToBoolE(trimmed)
	default:
		return nil, fmt.Errorf("%w: unknown field type %q", ErrInvalidValue, byte(t))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a valid %s: %v", ErrInvalidValue, raw, t, err)
	}
	return value, nil
}

func checkDecimal(s string, bitSize int) error {
	if !decimalPattern.MatchString(s) {
		return errors.New("not a decimal integer")
	}
	if _, err := strconv.ParseInt(s, 10, bitSize); err != nil {
		return fmt.Errorf("out of range for %d-bit integer", bitSize)
	}
	return nil
}

// PropertyFilter is a single comparison over one or more entity properties.
// Several property names are OR-ed; several values are OR-ed unless the
// restriction is a collection restriction (IN, NIN).
type PropertyFilter struct {
	Restriction   Restriction
	FieldType     FieldType
	PropertyNames []string
	// RawValue is the match value as received.
	RawValue string
	// Values holds RawValue split on ValueSeparator and converted to FieldType.
	// It is empty when RawValue is empty, which stands for NULL.
	Values []any
}

// ParsePropertyFilter builds a filter from an expression such as
// "EQS_name", "LIKES_title_OR_code" or "GED_createdAt" and its match value.
func ParsePropertyFilter(expression, matchValue string) (PropertyFilter, error) {
	expression = strings.TrimSpace(expression)
	token, names, ok := strings.Cut(expression, expressionSeparator)
	if !ok || len(token) < 2 || names == "" {
		return PropertyFilter{}, fmt.Errorf("%w: %q", ErrInvalidExpression, expression)
	}

	restriction := Restriction(strings.ToUpper(token[:len(token)-1]))
	if _, known := knownRestrictions[restriction]; !known {
		return PropertyFilter{}, fmt.Errorf("%w: unknown restriction %q in %q", ErrInvalidExpression, restriction, expression)
	}
	fieldType := FieldType(strings.ToUpper(token[len(token)-1:])[0])
	if !fieldType.Valid() {
		return PropertyFilter{}, fmt.Errorf("%w: unknown field type %q in %q", ErrInvalidExpression, token[len(token)-1:], expression)
	}

	var propertyNames []string
	for _, name := range strings.Split(names, PropertyNameSeparator) {
		name = strings.TrimSpace(name)
		if name == "" {
			return PropertyFilter{}, fmt.Errorf("%w: empty property name in %q", ErrInvalidExpression, expression)
		}
		propertyNames = append(propertyNames, name)
	}

	filter := PropertyFilter{
		Restriction:   restriction,
		FieldType:     fieldType,
		PropertyNames: propertyNames,
		RawValue:      matchValue,
	}

	if matchValue == "" {
		return filter, nil
	}
	for _, raw := range strings.Split(matchValue, ValueSeparator) {
		value, err := fieldType.Convert(raw)
		if err != nil {
			return PropertyFilter{}, fmt.Errorf("filter %q: %w", expression, err)
		}
		filter.Values = append(filter.Values, value)
	}
	return filter, nil
}

// ParsePropertyFilters parses expressions and match values pairwise.
func ParsePropertyFilters(expressions, matchValues []string) ([]PropertyFilter, error) {
	if len(expressions) != len(matchValues) {
		return nil, fmt.Errorf("%w: %d expressions but %d values", ErrInvalidExpression, len(expressions), len(matchValues))
	}
	filters := make([]PropertyFilter, 0, len(expressions))
	for i, expression := range expressions {
		filter, err := ParsePropertyFilter(expression, matchValues[i])
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

// PropertyFiltersFromValues collects filters from request parameters named
// prefix+expression, e.g. "filter_EQS_name=bob". Blank values are skipped and
// repeated parameters yield one filter each.
func PropertyFiltersFromValues(values url.Values, prefix string) ([]PropertyFilter, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var filters []PropertyFilter
	for _, key := range keys {
		expression := strings.TrimPrefix(key, prefix)
		for _, raw := range values[key] {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			filter, err := ParsePropertyFilter(expression, raw)
			if err != nil {
				return nil, err
			}
			filters = append(filters, filter)
		}
	}
	return filters, nil
}

// Clone returns a copy of f that shares no slices with it.
func (f PropertyFilter) Clone() PropertyFilter {
	f.PropertyNames = append([]string(nil), f.PropertyNames...)
	f.Values = append([]any(nil), f.Values...)
	return f
}

// PropertyName returns the first property name.
func (f PropertyFilter) PropertyName() string {
	if len(f.PropertyNames) == 0 {
		return ""
	}
	return f.PropertyNames[0]
}

// HasMultiplePropertyNames reports whether the filter spans several properties.
func (f PropertyFilter) HasMultiplePropertyNames() bool {
	return len(f.PropertyNames) > 1
}

// Value returns the first converted value, or nil for a NULL match.
func (f PropertyFilter) Value() any {
	if len(f.Values) == 0 {
		return nil
	}
	return f.Values[0]
}

// HasMultipleValues reports whether the match value listed several values.
func (f PropertyFilter) HasMultipleValues() bool {
	return len(f.Values) > 1
}

// IsNull reports whether the filter matches against NULL.
func (f PropertyFilter) IsNull() bool {
	return len(f.Values) == 0
}

// Expression renders the filter back into its expression form.
func (f PropertyFilter) Expression() string {
	return string(f.Restriction) + string(rune(f.FieldType)) + expressionSeparator +
		strings.Join(f.PropertyNames, PropertyNameSeparator)
}

func (f PropertyFilter) String() string {
	return f.Expression() + "=" + f.RawValue
}
