package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shaheed-N/medical-reserva-sub000/pkg/timeutil"
	"github.com/Shaheed-N/medical-reserva-sub000/pkg/types"
)

func rule(start, end string, slotMinutes int) *types.ScheduleRule {
	return &types.ScheduleRule{
		ID:          "rule-" + start,
		ProviderID:  "provider-1",
		LocationID:  "location-1",
		StartTime:   timeutil.MustClock(start),
		EndTime:     timeutil.MustClock(end),
		SlotMinutes: slotMinutes,
		IsActive:    true,
	}
}

func bookedAppointment(id, start, end string, status types.AppointmentStatus) *types.Appointment {
	return &types.Appointment{
		ID:         id,
		ProviderID: "provider-1",
		StartTime:  timeutil.MustClock(start),
		EndTime:    timeutil.MustClock(end),
		Status:     status,
	}
}

func TestBuildCandidates_SlotCount(t *testing.T) {
	// A 3 hour window at 30 minute slots yields exactly 6 candidates.
	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "12:00", 30)}, nil, nil, 30)

	require.Len(t, got, 6)
	assert.Equal(t, timeutil.MustClock("09:00"), got[0].Start)
	assert.Equal(t, timeutil.MustClock("09:30"), got[0].End)
	assert.Equal(t, timeutil.MustClock("11:30"), got[5].Start)
	assert.Equal(t, timeutil.MustClock("12:00"), got[5].End)
	for _, w := range got {
		assert.True(t, w.Available)
		assert.Empty(t, w.BlockedBy)
	}
}

func TestBuildCandidates_NoTrailingPartialSlot(t *testing.T) {
	// 09:00-12:10 at 30 minutes still yields 6 slots; the trailing 10
	// minutes produce nothing rather than a truncated slot.
	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "12:10", 30)}, nil, nil, 30)

	require.Len(t, got, 6)
	assert.Equal(t, timeutil.MustClock("12:00"), got[5].End)
}

func TestBuildCandidates_WindowShorterThanSlot(t *testing.T) {
	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "09:20", 30)}, nil, nil, 30)
	assert.Empty(t, got)
}

func TestBuildCandidates_NoRules(t *testing.T) {
	got := buildCandidates(nil, nil, nil, 30)

	// Empty day, not an error and not nil.
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestBuildCandidates_InactiveRuleSkipped(t *testing.T) {
	inactive := rule("09:00", "12:00", 30)
	inactive.IsActive = false

	got := buildCandidates([]*types.ScheduleRule{inactive}, nil, nil, 30)
	assert.Empty(t, got)
}

func TestBuildCandidates_BlackoutOverrideWins(t *testing.T) {
	override := &types.ScheduleOverride{
		ID:          "ov-1",
		IsAvailable: false,
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "17:00", 30)}, override, nil, 30)
	assert.Empty(t, got)
}

func TestBuildCandidates_AvailableOverrideReplacesRules(t *testing.T) {
	start := timeutil.MustClock("14:00")
	end := timeutil.MustClock("16:00")
	override := &types.ScheduleOverride{
		ID:          "ov-1",
		IsAvailable: true,
		StartTime:   &start,
		EndTime:     &end,
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "12:00", 30)}, override, nil, 30)

	// The override window replaces the rule hours entirely.
	require.Len(t, got, 4)
	assert.Equal(t, timeutil.MustClock("14:00"), got[0].Start)
	assert.Equal(t, timeutil.MustClock("16:00"), got[3].End)
}

func TestBuildCandidates_AvailableOverrideWithoutTimesKeepsRules(t *testing.T) {
	override := &types.ScheduleOverride{
		ID:          "ov-1",
		IsAvailable: true,
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "10:00", 30)}, override, nil, 30)
	assert.Len(t, got, 2)
}

func TestBuildCandidates_BookedSlotMarkedBlocked(t *testing.T) {
	booked := []*types.Appointment{
		bookedAppointment("apt-1", "10:00", "10:30", types.StatusConfirmed),
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "12:00", 30)}, nil, booked, 30)
	require.Len(t, got, 6)

	for _, w := range got {
		if w.Start == timeutil.MustClock("10:00") {
			assert.False(t, w.Available)
			assert.Equal(t, "apt-1", w.BlockedBy)
		} else {
			assert.True(t, w.Available, "window starting %s should be free", w.Start)
		}
	}
}

func TestBuildCandidates_TouchingWindowsDoNotConflict(t *testing.T) {
	// [09:30, 10:00) and [10:00, 10:30) share only the boundary instant.
	booked := []*types.Appointment{
		bookedAppointment("apt-1", "10:00", "10:30", types.StatusConfirmed),
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:30", "11:00", 30)}, nil, booked, 30)
	require.Len(t, got, 3)

	assert.True(t, got[0].Available)  // 09:30-10:00
	assert.False(t, got[1].Available) // 10:00-10:30
	assert.True(t, got[2].Available)  // 10:30-11:00
}

func TestBuildCandidates_PartialOverlapBlocks(t *testing.T) {
	// A 45 minute appointment straddling two slots blocks both.
	booked := []*types.Appointment{
		bookedAppointment("apt-1", "09:15", "10:15", types.StatusPending),
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "11:00", 30)}, nil, booked, 30)
	require.Len(t, got, 4)

	assert.False(t, got[0].Available) // 09:00-09:30
	assert.False(t, got[1].Available) // 09:30-10:00
	assert.False(t, got[2].Available) // 10:00-10:30
	assert.True(t, got[3].Available)  // 10:30-11:00
}

func TestBuildCandidates_CancelledAndNoShowDoNotBlock(t *testing.T) {
	booked := []*types.Appointment{
		bookedAppointment("apt-1", "09:00", "09:30", types.StatusCancelled),
		bookedAppointment("apt-2", "09:30", "10:00", types.StatusNoShow),
	}

	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "10:00", 30)}, nil, booked, 30)
	require.Len(t, got, 2)
	assert.True(t, got[0].Available)
	assert.True(t, got[1].Available)
}

func TestBuildCandidates_MultipleRulesSortedAscending(t *testing.T) {
	// Rules arrive in arbitrary order; candidates come out sorted.
	rules := []*types.ScheduleRule{
		rule("14:00", "15:00", 30),
		rule("09:00", "10:00", 30),
	}

	got := buildCandidates(rules, nil, nil, 30)
	require.Len(t, got, 4)

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Start.Before(got[i-1].Start))
	}
	assert.Equal(t, timeutil.MustClock("09:00"), got[0].Start)
	assert.Equal(t, timeutil.MustClock("14:30"), got[3].Start)
}

func TestBuildCandidates_OverlappingRulesNotDeduplicated(t *testing.T) {
	// Two rules covering the same hour each contribute their own windows;
	// configured hours are reflected faithfully, never merged.
	rules := []*types.ScheduleRule{
		rule("09:00", "10:00", 30),
		rule("09:00", "10:00", 30),
	}

	got := buildCandidates(rules, nil, nil, 30)
	assert.Len(t, got, 4)
}

func TestBuildCandidates_Deterministic(t *testing.T) {
	rules := []*types.ScheduleRule{
		rule("13:00", "15:00", 30),
		rule("09:00", "11:00", 30),
	}
	booked := []*types.Appointment{
		bookedAppointment("apt-1", "09:30", "10:00", types.StatusConfirmed),
	}

	first := buildCandidates(rules, nil, booked, 30)
	second := buildCandidates(rules, nil, booked, 30)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, *first[i], *second[i])
	}
}

func TestBuildCandidates_TwentyMinuteSlots(t *testing.T) {
	got := buildCandidates([]*types.ScheduleRule{rule("09:00", "10:00", 20)}, nil, nil, 20)

	require.Len(t, got, 3)
	assert.Equal(t, timeutil.MustClock("09:20"), got[0].End)
	assert.Equal(t, timeutil.MustClock("09:40"), got[1].End)
	assert.Equal(t, timeutil.MustClock("10:00"), got[2].End)
}

func TestExpandWindow_InvalidInputs(t *testing.T) {
	assert.Nil(t, expandWindow(timeutil.MustClock("10:00"), timeutil.MustClock("09:00"), 30))
	assert.Nil(t, expandWindow(timeutil.MustClock("09:00"), timeutil.MustClock("10:00"), 0))
	assert.Nil(t, expandWindow(timeutil.MustClock("09:00"), timeutil.MustClock("09:00"), 30))
}

func TestFindBlocking_FirstActiveOverlapWins(t *testing.T) {
	booked := []*types.Appointment{
		bookedAppointment("apt-cancelled", "09:00", "09:30", types.StatusCancelled),
		bookedAppointment("apt-active", "09:00", "09:30", types.StatusCheckedIn),
	}

	blocking := findBlocking(booked, timeutil.MustClock("09:00"), timeutil.MustClock("09:30"))
	require.NotNil(t, blocking)
	assert.Equal(t, "apt-active", blocking.ID)

	assert.Nil(t, findBlocking(booked, timeutil.MustClock("09:30"), timeutil.MustClock("10:00")))
}
