package schema

import (
	"fmt"

	"github.com/xxxsen/ctxkit/internal/model"
)

const (
	changeAdded    = "added"
	changeRemoved  = "removed"
	changeModified = "modified"

	NoteNoChanges = "No schema changes detected."
)

type columnChange struct {
	column string
	kind   string
	from   string
	to     string
}

// Drift holds the structural difference between two schema documents.
type Drift struct {
	oldTables map[string]Columns
	newTables map[string]Columns
	identical bool
}

func NewDrift(oldDoc, newDoc map[string]interface{}) *Drift {
	d := &Drift{
		oldTables: Tables(oldDoc),
		newTables: Tables(newDoc),
	}
	oldFP, errOld := Fingerprint(oldDoc)
	newFP, errNew := Fingerprint(newDoc)
	d.identical = errOld == nil && errNew == nil && oldFP == newFP
	return d
}

// Diff compares two schema documents and classifies the change.
func Diff(oldDoc, newDoc map[string]interface{}) model.CompatibilityResult {
	d := NewDrift(oldDoc, newDoc)
	return model.CompatibilityResult{Level: d.Level(), Notes: d.Notes()}
}

// TableChanges reports added/removed/modified per table name.
func (d *Drift) TableChanges() map[string]string {
	changes := make(map[string]string)
	for name := range d.newTables {
		if _, ok := d.oldTables[name]; !ok {
			changes[name] = changeAdded
		}
	}
	for name, oldCols := range d.oldTables {
		newCols, ok := d.newTables[name]
		if !ok {
			changes[name] = changeRemoved
			continue
		}
		if !sameColumns(oldCols, newCols) {
			changes[name] = changeModified
		}
	}
	return changes
}

func (d *Drift) columnChanges(table string) []columnChange {
	oldCols := d.oldTables[table]
	newCols := d.newTables[table]
	names := map[string]struct{}{}
	for c := range oldCols {
		names[c] = struct{}{}
	}
	for c := range newCols {
		names[c] = struct{}{}
	}
	var out []columnChange
	for _, c := range sortedKeys(names) {
		oldType, inOld := oldCols[c]
		newType, inNew := newCols[c]
		switch {
		case inNew && !inOld:
			out = append(out, columnChange{column: c, kind: changeAdded})
		case inOld && !inNew:
			out = append(out, columnChange{column: c, kind: changeRemoved})
		case normalizeIdent(oldType) != normalizeIdent(newType):
			out = append(out, columnChange{column: c, kind: changeModified, from: oldType, to: newType})
		}
	}
	return out
}

func (d *Drift) Level() model.CompatibilityLevel {
	if d.identical {
		return model.CompatIdentical
	}
	tableChanges := d.TableChanges()
	for _, change := range tableChanges {
		if change == changeRemoved {
			return model.CompatBreaking
		}
	}
	for table, change := range tableChanges {
		if change != changeModified {
			continue
		}
		for _, cc := range d.columnChanges(table) {
			if cc.kind == changeRemoved || cc.kind == changeModified {
				return model.CompatBreaking
			}
		}
	}
	return model.CompatCompatible
}

// Notes renders one line per change, tables first then their columns.
func (d *Drift) Notes() []string {
	if d.identical {
		return []string{NoteNoChanges}
	}
	tableChanges := d.TableChanges()
	notes := make([]string, 0, len(tableChanges))
	for _, table := range sortedKeys(tableChanges) {
		switch tableChanges[table] {
		case changeAdded:
			notes = append(notes, "✅ New table: "+table)
		case changeRemoved:
			notes = append(notes, "❌ Removed table: "+table)
		case changeModified:
			notes = append(notes, "📝 Modified table: "+table)
			for _, cc := range d.columnChanges(table) {
				switch cc.kind {
				case changeAdded:
					notes = append(notes, "  ✅ Added column: "+cc.column)
				case changeRemoved:
					notes = append(notes, "  ❌ Removed column: "+cc.column)
				case changeModified:
					notes = append(notes, fmt.Sprintf("  🔄 %s: type_changed: %s -> %s", cc.column, cc.from, cc.to))
				}
			}
		}
	}
	if len(notes) == 0 {
		// fingerprints differ only outside table/column structure
		notes = append(notes, "Schema metadata changed without table or column differences.")
	}
	return notes
}

func sameColumns(a, b Columns) bool {
	if len(a) != len(b) {
		return false
	}
	for c, t := range a {
		other, ok := b[c]
		if !ok || normalizeIdent(other) != normalizeIdent(t) {
			return false
		}
	}
	return true
}
