// Package bookmarks hosts the bookmark manager procedures. Bookmarks belong
// to at most one collection and carry any number of tags through the
// bookmark_tags link table.
package bookmarks

import (
	"context"
	"fmt"

	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
	"github.com/roach88/crudkit/internal/schema"
)

const (
	EntityCollection = "Collection"
	EntityTag        = "Tag"
	EntityBookmark   = "Bookmark"

	tagsLink = "tags"
)

// Register installs generic CRUD for Collection, Tag and Bookmark plus
// bookmark.by_tag and collection.bookmarks.
func Register(e *engine.Engine) error {
	a := &app{e: e}
	for name, dst := range map[string]**ir.EntitySpec{
		EntityCollection: &a.collection,
		EntityTag:        &a.tag,
		EntityBookmark:   &a.bookmark,
	} {
		spec, ok := e.Spec(name)
		if !ok {
			return fmt.Errorf("bookmarks: catalog has no %s entity", name)
		}
		*dst = spec
	}
	link, ok := a.bookmark.Link(tagsLink)
	if !ok || link.Target != EntityTag {
		return fmt.Errorf("bookmarks: %s has no %q link to %s", EntityBookmark, tagsLink, EntityTag)
	}
	a.link = link

	for _, name := range []string{EntityCollection, EntityTag, EntityBookmark} {
		if err := e.RegisterCRUD(name); err != nil {
			return err
		}
	}

	procs := []engine.Procedure{
		{
			Name:    "bookmark.by_tag",
			Entity:  EntityBookmark,
			Doc:     "List bookmarks carrying a tag, most recent first",
			Handler: a.byTag,
		},
		{
			Name:    "collection.bookmarks",
			Entity:  EntityCollection,
			Doc:     "List the bookmarks in a collection, most recent first",
			Handler: a.collectionBookmarks,
		},
	}
	for _, p := range procs {
		if err := e.Register(p); err != nil {
			return err
		}
	}
	return nil
}

type app struct {
	e          *engine.Engine
	collection *ir.EntitySpec
	tag        *ir.EntitySpec
	bookmark   *ir.EntitySpec
	link       ir.LinkSpec
}

var one = 1.0

var byTagArgs = []ir.FieldSpec{
	{Name: "tag_id", Type: ir.TypeInt, Required: true, Min: &one},
	{Name: "limit", Type: ir.TypeInt, Nullable: true, Min: &one, Max: ptr(ir.MaxLimit)},
	{Name: "offset", Type: ir.TypeInt, Nullable: true, Min: ptr(0)},
}

func (a *app) byTag(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields(EntityBookmark, byTagArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	tagID := int64(values["tag_id"].(ir.IRInt))
	if _, err := a.e.Store().SelectOne(ctx, a.tag, tagID); err != nil {
		return nil, err
	}
	limit, offset := page(values)

	order := a.bookmark.DefaultOrder
	rows, err := a.e.Store().Query(ctx, queryir.Join{
		Left: queryir.Select{
			From:    a.bookmark.Table,
			OrderBy: []queryir.Order{{Field: order.Field, Desc: order.Desc}},
			Limit:   limit,
			Offset:  offset,
		},
		Right: queryir.Select{
			From:   a.link.Table,
			Filter: queryir.Equals{Field: a.link.TargetColumn(), Value: tagID},
		},
		On: queryir.FieldEquals{
			Left:  a.bookmark.Table + "." + ir.FieldID,
			Right: a.link.Table + "." + a.link.OwnerColumn(a.bookmark),
		},
	})
	if err != nil {
		return nil, err
	}
	return a.e.Records(ctx, a.bookmark, rows)
}

var collectionArgs = []ir.FieldSpec{
	{Name: "collection_id", Type: ir.TypeInt, Required: true, Min: &one},
	{Name: "limit", Type: ir.TypeInt, Nullable: true, Min: &one, Max: ptr(ir.MaxLimit)},
	{Name: "offset", Type: ir.TypeInt, Nullable: true, Min: ptr(0)},
}

func (a *app) collectionBookmarks(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields(EntityCollection, collectionArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	id := values["collection_id"].(ir.IRInt)
	if _, err := a.e.Store().SelectOne(ctx, a.collection, int64(id)); err != nil {
		return nil, err
	}
	limit, offset := page(values)

	rows, err := a.e.Store().SelectMany(ctx, a.bookmark, ir.ListQuery{
		Conditions: []ir.Condition{{Field: "collection_id", Op: ir.OpEq, Value: id}},
		Order:      a.bookmark.DefaultOrder,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	return a.e.Records(ctx, a.bookmark, rows)
}

func page(values ir.IRObject) (limit, offset int) {
	limit = ir.DefaultLimit
	if n, ok := values["limit"].(ir.IRInt); ok {
		limit = int(n)
	}
	if n, ok := values["offset"].(ir.IRInt); ok {
		offset = int(n)
	}
	return limit, offset
}

func ptr(n float64) *float64 { return &n }
