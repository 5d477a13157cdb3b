package service

import (
	"time"

	"riq-studio-api/modules/availability/entity"
)

// DefaultRuleGenerator produces the fallback availability for a date from
// the fixed weekly rule: closed one day a week, open otherwise. It is pure
// and deterministic; LastUpdated is stamped by the engine at reconcile time.
type DefaultRuleGenerator struct {
	closedWeekday time.Weekday
}

func NewDefaultRuleGenerator() *DefaultRuleGenerator {
	return &DefaultRuleGenerator{closedWeekday: time.Monday}
}

// Generate returns one fact per (studio, slot) for the date, all carrying
// the same availability derived from the weekly rule.
func (g *DefaultRuleGenerator) Generate(date time.Time) []entity.AvailabilityFact {
	date = entity.DateOnly(date)
	available := date.Weekday() != g.closedWeekday

	facts := make([]entity.AvailabilityFact, 0, len(entity.Studios())*len(entity.Slots()))
	for _, studioID := range entity.Studios() {
		for _, slotID := range entity.Slots() {
			facts = append(facts, entity.AvailabilityFact{
				Date:       date,
				StudioID:   studioID,
				TimeSlotID: slotID,
				Available:  available,
				Source:     entity.SourceDefault,
				SyncStatus: entity.SyncStatusDefault,
			})
		}
	}
	return facts
}
