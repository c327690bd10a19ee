package search

import (
	"testing"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

var snapshot = []memo.RecordingEntry{
	{ID: "a", Name: "Standup notes", CreatedDate: "1/2/24", CreatedTime: "9:00:00 AM"},
	{ID: "b", Name: "Song IDEA", CreatedDate: "1/3/24", CreatedTime: "3:15:00 PM"},
	{ID: "c", Name: "Lecture", CreatedDate: "2/14/24", CreatedTime: "10:30:00 AM"},
}

func rowIDs(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Entry.ID
	}
	return out
}

func TestProjectEmptyQueryReturnsAll(t *testing.T) {
	for _, q := range []string{"", "   "} {
		rows := Project(snapshot, q)
		if len(rows) != 3 {
			t.Errorf("query %q returned %d rows", q, len(rows))
		}
		for i, r := range rows {
			if r.Index != i {
				t.Errorf("row %d has index %d", i, r.Index)
			}
		}
	}
}

func TestProjectMatchesFields(t *testing.T) {
	cases := []struct {
		query string
		want  []string
	}{
		{"idea", []string{"b"}},
		{"STAND", []string{"a"}},
		{"1/", []string{"a", "b"}},
		{"am", []string{"a", "c"}},
		{"pm", []string{"b"}},
		{" lecture ", []string{"c"}},
		{"nothing", []string{}},
	}
	for _, tc := range cases {
		got := rowIDs(Project(snapshot, tc.query))
		if len(got) != len(tc.want) {
			t.Errorf("query %q: got %v, want %v", tc.query, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("query %q: got %v, want %v", tc.query, got, tc.want)
			}
		}
	}
}

func TestProjectRowsCarryCatalogIndex(t *testing.T) {
	rows := Project(snapshot, "lecture")
	if len(rows) != 1 || rows[0].Index != 2 || rows[0].Entry.ID != "c" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestViewRecomputes(t *testing.T) {
	v := NewView()
	calls := 0
	v.OnChange(func([]Row) { calls++ })

	v.SetSnapshot(snapshot, 1)
	if len(v.Rows()) != 3 {
		t.Fatalf("rows = %d", len(v.Rows()))
	}
	v.SetQuery("song")
	if got := rowIDs(v.Rows()); len(got) != 1 || got[0] != "b" {
		t.Errorf("rows = %v", got)
	}

	renamed := append([]memo.RecordingEntry(nil), snapshot...)
	renamed[0].Name = "Song draft"
	v.SetSnapshot(renamed, 2)
	if got := rowIDs(v.Rows()); len(got) != 2 || got[0] != "a" {
		t.Errorf("rows after snapshot change = %v", got)
	}
	if v.Query() != "song" {
		t.Errorf("query = %q", v.Query())
	}
	if calls != 3 {
		t.Errorf("OnChange called %d times", calls)
	}
}

func TestViewIgnoresOlderSnapshot(t *testing.T) {
	v := NewView()
	renamed := append([]memo.RecordingEntry(nil), snapshot...)
	renamed[1].Name = "Renamed"

	if !v.SetSnapshot(renamed, 5) {
		t.Fatal("newer snapshot should apply")
	}
	if v.SetSnapshot(snapshot, 4) {
		t.Error("older snapshot must be ignored")
	}
	if v.SetSnapshot(snapshot, 5) {
		t.Error("repeated version must be ignored")
	}
	rows := v.Rows()
	if len(rows) != 3 || rows[1].Entry.Name != "Renamed" {
		t.Errorf("rows = %+v", rows)
	}
	if !v.SetSnapshot(nil, 0) || len(v.Rows()) != 0 {
		t.Error("unversioned snapshot should always apply")
	}
}
