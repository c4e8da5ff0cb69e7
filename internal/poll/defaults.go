package poll

import "time"

// GenerateDefaultOptions builds one option per day for settings.RangeDays days
// starting today in loc, using the weekend window on Saturday and Sunday.
func GenerateDefaultOptions(settings Settings, now time.Time, loc *time.Location) []NewOption {
	if loc == nil {
		loc = time.UTC
	}
	settings = settings.withDefaults()
	weekdayStart, _ := parseClock(settings.WeekdayStart)
	weekdayEnd, _ := parseClock(settings.WeekdayEnd)
	weekendStart, _ := parseClock(settings.WeekendStart)
	weekendEnd, _ := parseClock(settings.WeekendEnd)

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	out := make([]NewOption, 0, settings.RangeDays)
	for i := 0; i < settings.RangeDays; i++ {
		day := today.AddDate(0, 0, i)
		start, end := weekdayStart, weekdayEnd
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			start, end = weekendStart, weekendEnd
		}
		slot := Slot{
			Start: at(day, start),
			End:   at(day, end),
		}
		if !slot.End.After(slot.Start) {
			slot.End = slot.End.AddDate(0, 0, 1)
		}
		out = append(out, NewOption{
			StartTime: slot.Start,
			EndTime:   slot.End,
			Label:     slot.Label(),
			CreatedBy: "system",
		})
	}
	return out
}

func at(day time.Time, c Clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}
