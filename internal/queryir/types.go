package queryir

// Query represents an abstract query in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: table access with filtering, ordering and pagination
//   - Join: inner join of two selects, returning the left side's columns
//   - Count: number of rows matching a filter
//   - Insert, Update, Delete: writes
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// Predicates are used in Select.Filter, Join.On, Count.Filter,
// Update.Filter and Delete.Filter.
//
// Predicate types:
//   - Equals / NotEquals: field = literal, field <> literal
//   - Compare: field <op> literal for <, <=, >, >=
//   - In: field IN (literals...)
//   - IsNull: field IS [NOT] NULL
//   - FieldEquals: column = column (join conditions)
//   - And / Or: conjunction and disjunction
//
// Literal values are storage-native Go values (string, int64, float64,
// nil) or ir.IRValue scalars. They are always bound as parameters.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select represents a table access query.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter>
//	ORDER BY <order_by...>, id LIMIT <limit> OFFSET <offset>
//
// Example:
//
//	Select{
//	  From:    "products",
//	  Filter:  Compare{Field: "stock_level", Op: OpLte, Value: int64(5)},
//	  OrderBy: []Order{{Field: "stock_level"}},
//	  Limit:   50,
//	}
//
// Translates to SQL:
//
//	SELECT * FROM products WHERE stock_level <= ?
//	ORDER BY stock_level COLLATE BINARY ASC, id ASC LIMIT ?
//
// The compiler always appends an id tiebreaker so page boundaries are stable
// even when the primary order has ties.
type Select struct {
	From    string    // Table name
	Columns []string  // Explicit column list (nil = all columns)
	Filter  Predicate // WHERE conditions (nil = no filter)
	OrderBy []Order   // Primary sort keys; id tiebreaker is implicit
	Limit   int       // 0 = unlimited
	Offset  int
}

func (Select) queryNode() {}

// Order is a sort key. Numeric keys sort by value, for decimal columns
// stored as TEXT.
type Order struct {
	Field   string
	Desc    bool
	Numeric bool
}

// Join represents an inner join of two selects.
//
// Semantics:
//
//	SELECT <left.columns> FROM <left> INNER JOIN <right> ON <on>
//	WHERE <left.filter> AND <right.filter>
//	ORDER BY <left.order_by...>, left.id
//
// Unqualified fields in each side's filter are qualified with that side's
// table. Ordering and pagination come from the left select.
//
// Example (bookmarks carrying a tag):
//
//	Join{
//	  Left:  Select{From: "bookmarks", OrderBy: []Order{{Field: "created_at", Desc: true}}},
//	  Right: Select{From: "bookmark_tags", Filter: Equals{Field: "tag_id", Value: int64(3)}},
//	  On:    FieldEquals{Left: "bookmarks.id", Right: "bookmark_tags.bookmark_id"},
//	}
type Join struct {
	Left  Query     // Must be a Select
	Right Query     // Must be a Select
	On    Predicate // Join condition (required)
}

func (Join) queryNode() {}

// Count counts rows matching Filter.
//
//	SELECT COUNT(*) FROM <from> WHERE <filter>
type Count struct {
	From   string
	Filter Predicate
}

func (Count) queryNode() {}

// Assignment sets one column to a storage-native value.
type Assignment struct {
	Column string
	Value  any
}

// Insert adds one row.
//
//	INSERT INTO <table> (<columns>) VALUES (?, ...)
type Insert struct {
	Table string
	Set   []Assignment
}

func (Insert) queryNode() {}

// Update modifies rows matching Filter.
//
//	UPDATE <table> SET <col> = ?, ... WHERE <filter>
type Update struct {
	Table  string
	Set    []Assignment
	Filter Predicate
}

func (Update) queryNode() {}

// Delete removes rows matching Filter.
//
//	DELETE FROM <table> WHERE <filter>
type Delete struct {
	Table  string
	Filter Predicate
}

func (Delete) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
// Numeric marks columns whose stored TEXT must be compared as numbers
// (decimal fields), so that "12.50" equals 12.5.
type Equals struct {
	Field   string
	Value   any
	Numeric bool
}

func (Equals) predicateNode() {}

// NotEquals represents a field-not-equal-literal predicate.
// NULL columns never match.
type NotEquals struct {
	Field   string
	Value   any
	Numeric bool
}

func (NotEquals) predicateNode() {}

// CompareOp is a range comparison operator.
type CompareOp string

const (
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// ValidOps lists the accepted comparison operators.
var ValidOps = map[CompareOp]bool{
	OpLt:  true,
	OpLte: true,
	OpGt:  true,
	OpGte: true,
}

// Compare represents a range predicate: <field> <op> <value>.
type Compare struct {
	Field   string
	Op      CompareOp
	Value   any
	Numeric bool
}

func (Compare) predicateNode() {}

// In matches when the field equals any of Values. An empty Values list
// matches nothing.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// IsNull matches NULL columns, or non-NULL columns when Negate is set.
type IsNull struct {
	Field  string
	Negate bool
}

func (IsNull) predicateNode() {}

// FieldEquals compares two columns. Used for join conditions.
type FieldEquals struct {
	Left  string
	Right string
}

func (FieldEquals) predicateNode() {}

// FieldCompare is a range comparison between two columns of the same row:
// <left> <op> <right>.
type FieldCompare struct {
	Left  string
	Op    CompareOp
	Right string
}

func (FieldCompare) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates (at least one must be true).
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// AndOf combines predicates, dropping nils. Returns nil when nothing is left
// and the single predicate when only one remains.
func AndOf(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
