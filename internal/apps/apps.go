// Package apps wires the demo applications into an engine.
package apps

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/crudkit/internal/apps/bookmarks"
	"github.com/roach88/crudkit/internal/apps/expenses"
	"github.com/roach88/crudkit/internal/apps/habits"
	"github.com/roach88/crudkit/internal/apps/inventory"
	"github.com/roach88/crudkit/internal/engine"
)

// App is one demo application and the entities it owns.
type App struct {
	Name     string
	Entities []string
	Register func(*engine.Engine) error
}

// All lists the built-in applications.
var All = []App{
	{Name: "inventory", Entities: []string{inventory.EntityProduct, inventory.EntityMovement}, Register: inventory.Register},
	{Name: "bookmarks", Entities: []string{bookmarks.EntityCollection, bookmarks.EntityTag, bookmarks.EntityBookmark}, Register: bookmarks.Register},
	{Name: "expenses", Entities: []string{expenses.EntityCategory, expenses.EntityExpense}, Register: expenses.Register},
	{Name: "habits", Entities: []string{habits.EntityHabit, habits.EntityCheckIn}, Register: habits.Register},
}

// Register installs every application whose entities are all present in
// the engine's catalog, then generic CRUD for the entities no application
// claimed. It returns the names of the applications installed.
func Register(e *engine.Engine) ([]string, error) {
	claimed := make(map[string]bool)
	var installed []string
	for _, app := range All {
		if !hasAll(e, app.Entities) {
			e.Logger().Debug("skipping app; catalog lacks its entities", zap.String("app", app.Name))
			continue
		}
		if err := app.Register(e); err != nil {
			return installed, fmt.Errorf("register %s: %w", app.Name, err)
		}
		for _, name := range app.Entities {
			claimed[name] = true
		}
		installed = append(installed, app.Name)
	}

	for _, spec := range e.Entities() {
		if claimed[spec.Name] {
			continue
		}
		if err := e.RegisterCRUD(spec.Name); err != nil {
			return installed, err
		}
	}
	return installed, nil
}

func hasAll(e *engine.Engine, names []string) bool {
	for _, name := range names {
		if _, ok := e.Spec(name); !ok {
			return false
		}
	}
	return true
}
