package recap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Scenario 5 from the spec: 5 events with importance
// {high, high, medium, low, high} dated {T, T-3d, T-1d, T-2d, T-40d} and
// max_event_age_days=30 -- exactly 2 events survive (the two "high"
// events at T and T-3d; the T-40d high is dropped by age).
func TestFilterAgedEvents(t *testing.T) {
	e := &Engine{MaxEventAgeDays: 30}

	var doc Document
	doc.EventsByTimeline.Current.Events = []Event{
		{Description: "A", Importance: ImportanceHigh, DateStart: "2024-06-30"},
		{Description: "B", Importance: ImportanceHigh, DateStart: "2024-06-27"},
		{Description: "C", Importance: ImportanceMedium, DateStart: "2024-06-29"},
		{Description: "D", Importance: ImportanceLow, DateStart: "2024-06-28"},
		{Description: "E", Importance: ImportanceHigh, DateStart: "2024-05-21"},
	}

	filtered := e.Filter(doc, "2024-06-01")

	kept := allEvents(filtered)
	assert.Len(t, kept, 2)
	for _, ev := range kept {
		assert.Equal(t, "", ev.Importance, "filtered events must not carry importance")
		assert.Equal(t, "", ev.DateStart, "filtered events must not carry date_start")
	}

	descriptions := []string{kept[0].Description, kept[1].Description}
	assert.ElementsMatch(t, []string{"A", "B"}, descriptions)
}

func TestFilterAgedEventsAllHigh(t *testing.T) {
	e := &Engine{MaxEventAgeDays: 30}
	var doc Document
	doc.EventsByTimeline.Current.Events = []Event{
		{Description: "A", Importance: ImportanceHigh, DateStart: "2024-06-30"},
	}
	filtered := e.Filter(doc, "2024-06-01")
	assert.Equal(t, 1, filtered.Meta.TotalEvents)
}

func TestParseLooseStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"meta\":{\"total_events\":1},\"events_by_timeline\":{\"current\":{\"events\":[{\"description\":\"x\",\"importance\":\"high\",\"date_start\":\"2024-01-01\"}]},\"recent_events\":{\"events\":null},\"historical\":{\"events\":null}}}\n```"
	doc, err := parseLoose(raw)
	assert.NoError(t, err)
	assert.Equal(t, 1, doc.Meta.TotalEvents)
	assert.Len(t, doc.EventsByTimeline.Current.Events, 1)
}

func TestClassifyByAgeBuckets(t *testing.T) {
	var doc Document
	doc.Meta.LatestEventDate = "2024-07-01"
	doc.EventsByTimeline.Current.Events = []Event{
		{Description: "today", DateStart: "2024-07-01"},
		{Description: "recent", DateStart: "2024-06-27"},
		{Description: "historical", DateStart: "2024-05-01"},
	}

	out := classifyByAge(doc)
	assert.Len(t, out.EventsByTimeline.Current.Events, 1)
	assert.Len(t, out.EventsByTimeline.Recent.Events, 1)
	assert.Len(t, out.EventsByTimeline.Historical.Events, 1)
}
