package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crudkit/internal/ir"
)

func TestCompileEntityBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Product: {
			table:   "products"
			purpose: "Things we sell"
			fields: {
				name:        {type: "string", required: true, max_length: 200}
				sku:         {type: "string", required: true, unique: true}
				price:       {type: "decimal", nullable: true, min: 0}
				stock_level: {type: "int", default: 0, min: 0}
			}
		}
	`)

	require.NoError(t, v.Err())
	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Product")))
	require.NoError(t, err)

	assert.Equal(t, "Product", spec.Name)
	assert.Equal(t, "products", spec.Table)
	assert.Equal(t, "Things we sell", spec.Purpose)
	require.Len(t, spec.Fields, 4)

	// Declaration order is preserved
	assert.Equal(t, "name", spec.Fields[0].Name)
	assert.Equal(t, "sku", spec.Fields[1].Name)
	assert.Equal(t, "price", spec.Fields[2].Name)
	assert.Equal(t, "stock_level", spec.Fields[3].Name)

	assert.Equal(t, ir.TypeString, spec.Fields[0].Type)
	assert.True(t, spec.Fields[0].Required)
	require.NotNil(t, spec.Fields[0].MaxLength)
	assert.Equal(t, 200, *spec.Fields[0].MaxLength)

	assert.True(t, spec.Fields[1].Unique)
	assert.True(t, spec.Fields[2].Nullable)
	require.NotNil(t, spec.Fields[2].Min)
	assert.Equal(t, 0.0, *spec.Fields[2].Min)

	assert.Equal(t, ir.IRInt(0), spec.Fields[3].Default)

	assert.Equal(t, ir.Order{Field: "created_at", Desc: true}, spec.DefaultOrder)
}

func TestCompileEntityReferencesAndLinks(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Bookmark: {
			table: "bookmarks"
			fields: {
				url:           {type: "string", required: true, pattern: "^https?://"}
				collection_id: {type: "int", nullable: true, references: "Collection", on_delete: "set_null"}
				owner_id:      {type: "int", references: "Owner"}
			}
			links: tags: {target: "Tag", table: "bookmark_tags"}
			order_by: {field: "url", desc: false}
		}
	`)

	require.NoError(t, v.Err())
	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Bookmark")))
	require.NoError(t, err)

	assert.Equal(t, "^https?://", spec.Fields[0].Pattern)
	assert.Equal(t, "Collection", spec.Fields[1].References)
	assert.Equal(t, ir.OnDeleteSetNull, spec.Fields[1].OnDelete)
	assert.Equal(t, ir.OnDeleteRestrict, spec.Fields[2].OnDelete, "on_delete defaults to restrict")

	require.Len(t, spec.Links, 1)
	assert.Equal(t, ir.LinkSpec{Name: "tags", Target: "Tag", Table: "bookmark_tags"}, spec.Links[0])
	assert.Equal(t, "tag_ids", spec.Links[0].LinkArg())
	assert.Equal(t, "bookmark_id", spec.Links[0].OwnerColumn(spec))
	assert.Equal(t, "tag_id", spec.Links[0].TargetColumn())

	assert.Equal(t, ir.Order{Field: "url"}, spec.DefaultOrder)
}

func TestCompileEntityEnumAndUniques(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: CheckIn: {
			table: "check_ins"
			fields: {
				habit_id: {type: "int", required: true, references: "Habit", on_delete: "cascade"}
				day:      {type: "date", required: true}
				mood:     {type: "enum", values: ["good", "bad"], default: "good"}
			}
			uniques: [["habit_id", "day"]]
		}
	`)

	require.NoError(t, v.Err())
	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.CheckIn")))
	require.NoError(t, err)

	assert.Equal(t, []string{"good", "bad"}, spec.Fields[2].Values)
	assert.Equal(t, ir.IRString("good"), spec.Fields[2].Default)
	assert.Equal(t, [][]string{{"habit_id", "day"}}, spec.Uniques)
	assert.Equal(t, "check_in", spec.ProcedurePrefix())
}

func TestCompileEntityDecimalDefaultKeepsLiteral(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Category: {
			table: "categories"
			fields: monthly_budget: {type: "decimal", default: 12.5}
		}
	`)

	require.NoError(t, v.Err())
	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Category")))
	require.NoError(t, err)

	assert.Equal(t, ir.IRNumber("12.5"), spec.Fields[0].Default)
}

func TestCompileEntityMissingTable(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Bad: {
			fields: name: {type: "string"}
		}
	`)

	require.NoError(t, v.Err())
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Bad")))

	require.Error(t, err)
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "table", compileErr.Field)
}

func TestCompileEntityMissingFields(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Empty: {
			table: "empties"
		}
	`)

	require.NoError(t, v.Err())
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Empty")))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one field")
}

func TestCompileEntityMissingType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Thing: {
			table: "things"
			fields: name: {required: true}
		}
	`)

	require.NoError(t, v.Err())
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Thing")))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields.name.type")
}

func TestCompileEntityWrongKind(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Thing: {
			table: 42
			fields: name: {type: "string"}
		}
	`)

	require.NoError(t, v.Err())
	_, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Thing")))
	require.Error(t, err)
}

func TestCompileCatalogSortedAndCollectsErrors(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		entity: Tag: {
			table: "tags"
			fields: name: {type: "string", required: true, unique: true}
		}
		entity: Collection: {
			table: "collections"
			fields: name: {type: "string", required: true}
		}
		entity: Broken: {
			fields: name: {type: "string"}
		}
	`)

	require.NoError(t, v.Err())
	specs, errs := CompileCatalog(v)

	require.Len(t, specs, 2)
	assert.Equal(t, "Collection", specs[0].Name)
	assert.Equal(t, "Tag", specs[1].Name)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "entity.Broken")
}

func TestCompileCatalogNoEntities(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`other: 1`)

	specs, errs := CompileCatalog(v)
	assert.Empty(t, specs)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no entities")
}
