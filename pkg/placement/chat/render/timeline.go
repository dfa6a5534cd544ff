package render

import (
	"time"

	"github.com/mikepea/placement/pkg/placement/chat"
)

// DateLayout formats days older than yesterday
const DateLayout = "Jan 2, 2006"

// Item is one row of a rendered timeline: a day separator or a message
type Item struct {
	Separator string
	Message   *chat.Message
}

// IsSeparator reports whether the item is a day label
func (i Item) IsSeparator() bool {
	return i.Message == nil
}

// DayLabel names the calendar day of t as seen from now in loc
func DayLabel(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	day := startOfDay(t.In(loc))
	today := startOfDay(now.In(loc))
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format(DateLayout)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Timeline interleaves msgs, oldest first, with a separator before the
// first message of each calendar day
func Timeline(msgs []chat.Message, now time.Time, loc *time.Location) []Item {
	if loc == nil {
		loc = time.Local
	}
	items := make([]Item, 0, len(msgs)+1)
	var current time.Time
	for i := range msgs {
		day := startOfDay(msgs[i].CreatedAt.In(loc))
		if i == 0 || !day.Equal(current) {
			items = append(items, Item{Separator: DayLabel(msgs[i].CreatedAt, now, loc)})
			current = day
		}
		items = append(items, Item{Message: &msgs[i]})
	}
	return items
}
