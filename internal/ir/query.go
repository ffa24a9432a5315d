package ir

// FilterOp is a list-filter operator as accepted on the wire.
type FilterOp string

const (
	OpEq     FilterOp = "eq"
	OpNe     FilterOp = "ne"
	OpLt     FilterOp = "lt"
	OpLte    FilterOp = "lte"
	OpGt     FilterOp = "gt"
	OpGte    FilterOp = "gte"
	OpIn     FilterOp = "in"
	OpIsNull FilterOp = "is_null"
)

// FilterOps lists the accepted operators.
var FilterOps = map[FilterOp]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLte: true,
	OpGt: true, OpGte: true, OpIn: true, OpIsNull: true,
}

// IsRange reports whether the operator needs an ordered field type.
func (op FilterOp) IsRange() bool {
	return op == OpLt || op == OpLte || op == OpGt || op == OpGte
}

// Condition is one validated filter term. Value holds the canonical value
// for scalar operators, Values the members for OpIn, and for OpIsNull Value
// is IRBool(true) for IS NULL and IRBool(false) for IS NOT NULL.
type Condition struct {
	Field  string
	Op     FilterOp
	Value  IRValue
	Values []IRValue
}

// ListQuery is a validated list request: conditions are ANDed together.
type ListQuery struct {
	Conditions []Condition
	Order      Order
	Limit      int
	Offset     int
}

// Pagination defaults and bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)
