package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnnouncementInput_Validate(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	before := start.AddDate(0, 0, -1)
	base := AnnouncementInput{Title: "Gate change", StatusID: 1, AudienceID: AudienceAll}

	cases := []struct {
		name    string
		mutate  func(*AnnouncementInput)
		wantErr string
	}{
		{"all audience", func(*AnnouncementInput) {}, ""},
		{"blank title", func(in *AnnouncementInput) { in.Title = "  " }, "titleName is required"},
		{"missing status", func(in *AnnouncementInput) { in.StatusID = 0 }, "astid is required"},
		{"customer without cus_id", func(in *AnnouncementInput) { in.AudienceID = AudienceCustomer }, "cus_id is required"},
		{"customer", func(in *AnnouncementInput) { in.AudienceID, in.CusID = AudienceCustomer, "C1" }, ""},
		{"group without group_id", func(in *AnnouncementInput) { in.AudienceID = AudienceGroup }, "group_id is required"},
		{"group", func(in *AnnouncementInput) { in.AudienceID, in.GroupID = AudienceGroup, 4 }, ""},
		{"unknown audience", func(in *AnnouncementInput) { in.AudienceID = 9 }, "tgadid must be"},
		{"end before start", func(in *AnnouncementInput) { in.StartDate, in.EndDate = &start, &before }, "enddate is before startdate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			err := in.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestAnnouncementInput_NormalizedDropsUnusedTargets(t *testing.T) {
	in := AnnouncementInput{Title: " Delay ", Reason: " weather\n", CusID: " C1 ", GroupID: 7, ScheduleHour: " 09 "}

	in.AudienceID = AudienceAll
	got := in.normalized()
	assert.Equal(t, "Delay", got.Title)
	assert.Equal(t, "weather", got.Reason)
	assert.Equal(t, "09", got.ScheduleHour)
	assert.Empty(t, got.CusID)
	assert.Zero(t, got.GroupID)

	in.AudienceID = AudienceCustomer
	got = in.normalized()
	assert.Equal(t, "C1", got.CusID)
	assert.Zero(t, got.GroupID)

	in.AudienceID = AudienceGroup
	got = in.normalized()
	assert.Empty(t, got.CusID)
	assert.EqualValues(t, 7, got.GroupID)
}
