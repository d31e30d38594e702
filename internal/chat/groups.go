package chat

import "github.com/barotovamirbek/elowy-chat/internal/models"

// SetGroups replaces the known group list.
func (v *View) SetGroups(groups []models.Group) {
	v.mu.Lock()
	v.groups = make([]models.Group, len(groups))
	copy(v.groups, groups)
	s := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(s)
}

// ApplyGroupUpdate merges a group edit into the list and, when that group is
// selected, into the selection. Unknown groups are ignored.
func (v *View) ApplyGroupUpdate(patch models.GroupPatch) {
	v.mu.Lock()
	found := false
	for i := range v.groups {
		if v.groups[i].ID == patch.ID {
			patch.Apply(&v.groups[i])
			found = true
			break
		}
	}
	if v.selected != nil && v.selected.IsGroup() && v.selected.ID == patch.ID && patch.Name != nil {
		v.selected.Name = *patch.Name
		found = true
	}
	if !found {
		v.mu.Unlock()
		return
	}
	s := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(s)
}

// ApplyGroupDelete drops the group. If it was selected, the selection and the
// store are cleared and any in-flight history fetch is invalidated.
func (v *View) ApplyGroupDelete(groupID int) {
	v.mu.Lock()
	kept := v.groups[:0]
	for _, g := range v.groups {
		if g.ID != groupID {
			kept = append(kept, g)
		}
	}
	v.groups = kept
	if v.selected != nil && v.selected.IsGroup() && v.selected.ID == groupID {
		v.generation++
		v.selected = nil
		v.store.Clear()
	}
	s := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(s)
}
