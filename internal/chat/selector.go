package chat

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

// Select switches the view to target and replaces the store with its history.
// Exactly one fetch is issued. Only the most recently issued fetch may write
// the store: a response that resolves after a newer Select is discarded.
// A failed fetch leaves the store empty; the error is logged, not returned.
func (v *View) Select(ctx context.Context, target models.Target) {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	if target.IsGroup() {
		target = v.withGroupName(target)
	}
	v.selected = &target
	v.store.Clear()
	s := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(s)

	log := v.log.WithFields(logrus.Fields{"target_id": target.ID, "target_type": target.Type})

	body, err := v.fetcher.FetchHistory(ctx, target)

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		log.Debug("stale history response discarded")
		return
	}
	if err != nil {
		v.store.Clear()
		s = v.snapshotLocked()
		v.mu.Unlock()
		log.WithError(err).Error("failed to load history")
		v.notify(s)
		return
	}
	v.store.Replace(DecodeHistory(body))
	s = v.snapshotLocked()
	v.mu.Unlock()

	log.WithField("count", len(s.Messages)).Debug("history loaded")
	v.notify(s)
}

// Deselect returns the view to the empty state. In-flight fetches are invalidated.
func (v *View) Deselect() {
	v.mu.Lock()
	v.generation++
	v.selected = nil
	v.store.Clear()
	s := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(s)
}

func (v *View) Selected() *models.Target {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selected == nil {
		return nil
	}
	sel := *v.selected
	return &sel
}

func (v *View) withGroupName(target models.Target) models.Target {
	if target.Name != "" {
		return target
	}
	for _, g := range v.groups {
		if g.ID == target.ID {
			target.Name = g.Name
			break
		}
	}
	return target
}
