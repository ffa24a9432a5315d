// Package habits hosts the habit tracker procedures: one check-in per habit
// per day, and streaks computed from the check-in history.
package habits

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/crudkit/internal/coerce"
	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
	"github.com/roach88/crudkit/internal/schema"
	"github.com/roach88/crudkit/internal/store"
)

const (
	EntityHabit   = "Habit"
	EntityCheckIn = "CheckIn"
)

// Register installs generic CRUD for Habit and CheckIn plus habit.check_in
// and habit.streak.
func Register(e *engine.Engine) error {
	habit, ok := e.Spec(EntityHabit)
	if !ok {
		return fmt.Errorf("habits: catalog has no %s entity", EntityHabit)
	}
	checkIn, ok := e.Spec(EntityCheckIn)
	if !ok {
		return fmt.Errorf("habits: catalog has no %s entity", EntityCheckIn)
	}
	for _, name := range []string{EntityHabit, EntityCheckIn} {
		if err := e.RegisterCRUD(name); err != nil {
			return err
		}
	}

	a := &app{e: e, habit: habit, checkIn: checkIn}
	procs := []engine.Procedure{
		{
			Name:    "habit.check_in",
			Entity:  EntityCheckIn,
			Doc:     "Check a habit in for a day (default today); checking in twice returns the existing check-in",
			Handler: a.checkInHandler,
		},
		{
			Name:    "habit.streak",
			Entity:  EntityHabit,
			Doc:     "Current streak of consecutive days ending today or yesterday, with totals",
			Handler: a.streak,
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
	e       *engine.Engine
	habit   *ir.EntitySpec
	checkIn *ir.EntitySpec
}

var one = 1.0

var checkInArgs = []ir.FieldSpec{
	{Name: "habit_id", Type: ir.TypeInt, Required: true, Min: &one},
	{Name: "day", Type: ir.TypeDate, Nullable: true},
	{Name: "note", Type: ir.TypeText, Nullable: true},
}

func (a *app) checkInHandler(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields(EntityCheckIn, checkInArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	habitID := values["habit_id"].(ir.IRInt)
	day, ok := values["day"].(ir.IRTime)
	if !ok {
		day = ir.NewIRDate(a.e.Today())
	}

	var row store.Row
	err = a.e.Store().WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.SelectOne(ctx, a.habit, int64(habitID)); err != nil {
			return err
		}
		existing, err := tx.SelectMany(ctx, a.checkIn, ir.ListQuery{
			Conditions: []ir.Condition{
				{Field: "day", Op: ir.OpEq, Value: day},
				{Field: "habit_id", Op: ir.OpEq, Value: habitID},
			},
			Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			row = existing[0]
			return nil
		}
		row, err = tx.Insert(ctx, a.checkIn, ir.IRObject{
			"habit_id": habitID,
			"day":      day,
			"note":     values["note"],
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return a.e.Record(ctx, a.checkIn, row)
}

var streakArgs = []ir.FieldSpec{
	{Name: "habit_id", Type: ir.TypeInt, Required: true, Min: &one},
	{Name: "today", Type: ir.TypeDate, Nullable: true},
}

func (a *app) streak(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields(EntityHabit, streakArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	habitID := values["habit_id"].(ir.IRInt)
	today := a.e.Today()
	if t, ok := values["today"].(ir.IRTime); ok {
		today = t.Time()
	}

	habitRow, err := a.e.Store().SelectOne(ctx, a.habit, int64(habitID))
	if err != nil {
		return nil, err
	}
	habit, err := a.e.Record(ctx, a.habit, habitRow)
	if err != nil {
		return nil, err
	}

	rows, err := a.e.Store().Query(ctx, queryir.Select{
		From:    a.checkIn.Table,
		Columns: []string{"day"},
		Filter:  queryir.Equals{Field: "habit_id", Value: int64(habitID)},
		OrderBy: []queryir.Order{{Field: "day", Desc: true}},
	})
	if err != nil {
		return nil, err
	}
	dayField, _ := a.checkIn.Field("day")
	days := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		v, err := coerce.Decode(dayField, r["day"])
		if err != nil {
			return nil, &store.StorageError{Op: "decode " + a.checkIn.Table, Err: err}
		}
		days = append(days, v.(ir.IRTime).Time())
	}

	s := Compute(days, today)
	last := ir.IRValue(ir.IRNull{})
	if !s.Last.IsZero() {
		last = ir.NewIRDate(s.Last)
	}
	return ir.IRObject{
		"habit_id":        habitID,
		"today":           ir.NewIRDate(today),
		"streak":          ir.IRInt(s.Current),
		"total":           ir.IRInt(s.Total),
		"last_check_in":   last,
		"this_week":       ir.IRInt(s.LastSevenDays),
		"target_per_week": habit["target_per_week"],
	}, nil
}
