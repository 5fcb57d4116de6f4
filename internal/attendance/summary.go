package attendance

import "math"

// Summary aggregates one page of records.
type Summary struct {
	Total  int            `json:"total"`
	Counts map[Status]int `json:"counts"`
	Rate   int            `json:"rate"`
}

func Summarize(records []Record) Summary {
	s := Summary{
		Total:  len(records),
		Counts: make(map[Status]int, len(Statuses)),
	}
	for _, st := range Statuses {
		s.Counts[st] = 0
	}
	for _, r := range records {
		s.Counts[r.Status]++
	}
	s.Rate = rate(s.Counts[StatusPresent], s.Total)
	return s
}

func rate(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// Tally counts a teacher's class for one day. Students without a record count as absent.
type Tally struct {
	Present          int `json:"present"`
	AbsentOrUnmarked int `json:"absent_or_unmarked"`
	Total            int `json:"total"`
}

func TallyDay(rows []StudentAttendance) Tally {
	t := Tally{Total: len(rows)}
	for _, row := range rows {
		switch {
		case row.Record == nil, row.Record.Status == StatusAbsent:
			t.AbsentOrUnmarked++
		case row.Record.Status == StatusPresent:
			t.Present++
		}
	}
	return t
}
