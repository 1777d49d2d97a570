package specification

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidSpecification indicates a specification that cannot be translated into a store query.
var ErrInvalidSpecification = errors.New("specification: invalid specification")

type kind uint8

const (
	kindPredicate kind = iota + 1
	kindFunc
	kindAnd
	kindOr
)

// Specification is a named predicate over T. Store variants carry a GORM expression that
// selects exactly the entities for which SatisfiedBy reports true.
type Specification[T any] struct {
	kind      kind
	name      string
	satisfied func(T) bool
	expr      clause.Expression
	children  []Specification[T]
}

// Name describes the predicate for logs and error messages.
func (s Specification[T]) Name() string {
	return s.name
}

// SatisfiedBy evaluates the predicate in memory.
func (s Specification[T]) SatisfiedBy(entity T) bool {
	switch s.kind {
	case kindPredicate, kindFunc:
		return s.satisfied(entity)
	case kindAnd:
		for _, child := range s.children {
			if !child.SatisfiedBy(entity) {
				return false
			}
		}
		return true
	case kindOr:
		for _, child := range s.children {
			if child.SatisfiedBy(entity) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Translatable reports whether the specification has a store query fragment.
func (s Specification[T]) Translatable() bool {
	switch s.kind {
	case kindPredicate, kindAnd, kindOr:
		return s.expr != nil
	case kindFunc:
		return false
	default:
		return false
	}
}

// Expression returns the store query fragment for the specification.
func (s Specification[T]) Expression() (clause.Expression, error) {
	if !s.Translatable() {
		return nil, fmt.Errorf("%w: %s has no store translation", ErrInvalidSpecification, s.describe())
	}
	return s.expr, nil
}

func (s Specification[T]) describe() string {
	if s.name == "" {
		return "unnamed specification"
	}
	return s.name
}

// Where adds every specification to the query as an AND-ed condition.
func Where[T any](db *gorm.DB, specs ...Specification[T]) (*gorm.DB, error) {
	for _, spec := range specs {
		expr, err := spec.Expression()
		if err != nil {
			return nil, err
		}
		db = db.Where(expr)
	}
	return db, nil
}

// Equal matches entities whose column equals value.
func Equal[T any, V comparable](column clause.Column, value V, get func(T) V) Specification[T] {
	return Specification[T]{
		kind: kindPredicate,
		name: fmt.Sprintf("%s = %v", column.Name, value),
		satisfied: func(entity T) bool {
			return get(entity) == value
		},
		expr: clause.Eq{Column: column, Value: value},
	}
}

// NotNullEqual matches entities whose nullable column is set and equals value.
func NotNullEqual[T any, V comparable](column clause.Column, value V, get func(T) *V) Specification[T] {
	return Specification[T]{
		kind: kindPredicate,
		name: fmt.Sprintf("%s = %v", column.Name, value),
		satisfied: func(entity T) bool {
			current := get(entity)
			return current != nil && *current == value
		},
		expr: clause.And(
			clause.Expr{SQL: "? IS NOT NULL", Vars: []interface{}{column}},
			clause.Eq{Column: column, Value: value},
		),
	}
}

// IsNull matches entities whose nullable column is unset.
func IsNull[T any, V any](column clause.Column, get func(T) *V) Specification[T] {
	return Specification[T]{
		kind: kindPredicate,
		name: column.Name + " IS NULL",
		satisfied: func(entity T) bool {
			return get(entity) == nil
		},
		expr: clause.Eq{Column: column, Value: nil},
	}
}

// In matches entities whose column value is one of values. An empty set matches nothing.
func In[T any, V comparable](column clause.Column, values []V, get func(T) V) Specification[T] {
	allowed := make(map[V]struct{}, len(values))
	vars := make([]interface{}, 0, len(values))
	for _, value := range values {
		if _, seen := allowed[value]; seen {
			continue
		}
		allowed[value] = struct{}{}
		vars = append(vars, value)
	}
	return Specification[T]{
		kind: kindPredicate,
		name: fmt.Sprintf("%s IN %v", column.Name, values),
		satisfied: func(entity T) bool {
			_, ok := allowed[get(entity)]
			return ok
		},
		expr: clause.IN{Column: column, Values: vars},
	}
}

// ContainsFold matches entities whose column contains needle, ignoring ASCII case.
// SQLite's UPPER only folds ASCII letters, so the in-memory side does the same.
func ContainsFold[T any](column clause.Column, needle string, get func(T) string) Specification[T] {
	folded := upperASCII(needle)
	pattern := "%" + escapeLike(folded) + "%"
	return Specification[T]{
		kind: kindPredicate,
		name: fmt.Sprintf("%s contains %q", column.Name, needle),
		satisfied: func(entity T) bool {
			return strings.Contains(upperASCII(get(entity)), folded)
		},
		expr: clause.Expr{
			SQL:  `UPPER(?) LIKE ? ESCAPE '\'`,
			Vars: []interface{}{column, pattern},
		},
	}
}

// Func wraps an in-memory predicate. It cannot be sent to the store.
func Func[T any](name string, fn func(T) bool) Specification[T] {
	return Specification[T]{
		kind:      kindFunc,
		name:      name,
		satisfied: fn,
	}
}

// And combines store specifications with logical AND.
func And[T any](specs ...Specification[T]) (Specification[T], error) {
	return combine(kindAnd, "AND", specs)
}

// Or combines store specifications with logical OR.
func Or[T any](specs ...Specification[T]) (Specification[T], error) {
	return combine(kindOr, "OR", specs)
}

func combine[T any](k kind, operator string, specs []Specification[T]) (Specification[T], error) {
	if len(specs) == 0 {
		return Specification[T]{}, fmt.Errorf("%w: empty %s", ErrInvalidSpecification, operator)
	}
	exprs := make([]clause.Expression, 0, len(specs))
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		expr, err := spec.Expression()
		if err != nil {
			return Specification[T]{}, err
		}
		exprs = append(exprs, expr)
		names = append(names, spec.describe())
	}

	// GORM joins a single-element OrConditions to its neighbour with OR, so a lone
	// child is used as is.
	var expr clause.Expression
	switch {
	case len(exprs) == 1:
		expr = exprs[0]
	case k == kindAnd:
		expr = clause.And(exprs...)
	default:
		expr = clause.Or(exprs...)
	}

	children := make([]Specification[T], len(specs))
	copy(children, specs)
	return Specification[T]{
		kind:     k,
		name:     "(" + strings.Join(names, " "+operator+" ") + ")",
		expr:     expr,
		children: children,
	}, nil
}

func upperASCII(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	for index := 0; index < len(value); index++ {
		character := value[index]
		if character >= 'a' && character <= 'z' {
			character -= 'a' - 'A'
		}
		builder.WriteByte(character)
	}
	return builder.String()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
