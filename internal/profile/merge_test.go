package profile

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractedDecode_FlexibleShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Extracted
	}{
		{
			name: "canonical shapes",
			raw:  `{"name":"Roy","skills":["Go","SQL"],"goals":"lead a team"}`,
			want: Extracted{Name: "Roy", Skills: FlexList{"Go", "SQL"}, Goals: "lead a team"},
		},
		{
			name: "comma-separated string where list expected",
			raw:  `{"skills":"Go, SQL, Networking"}`,
			want: Extracted{Skills: FlexList{"Go", "SQL", "Networking"}},
		},
		{
			name: "list where string expected",
			raw:  `{"title":["IT Technician","Sysadmin"]}`,
			want: Extracted{Title: "IT Technician, Sysadmin"},
		},
		{
			name: "mis-typed field decodes to zero",
			raw:  `{"name":42,"skills":{"a":1}}`,
			want: Extracted{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Extracted
			if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decoded = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMerge_AdditiveFallback(t *testing.T) {
	p := Profile{
		Name:   "Alice Smith",
		Title:  "Engineer",
		Skills: []string{"Go"},
		Goals:  "ship things",
	}

	Merge(&p, Extracted{
		Title:  "Senior Engineer",
		Skills: FlexList{"Go", "Kubernetes"},
	})

	if p.Name != "Alice Smith" {
		t.Errorf("Name = %q; omitted field must keep prior value", p.Name)
	}
	if p.Title != "Senior Engineer" {
		t.Errorf("Title = %q, want %q", p.Title, "Senior Engineer")
	}
	if !reflect.DeepEqual(p.Skills, []string{"Go", "Kubernetes"}) {
		t.Errorf("Skills = %v", p.Skills)
	}
	if p.Goals != "ship things" {
		t.Errorf("Goals = %q; omitted field must keep prior value", p.Goals)
	}
}

func TestMerge_NeverClearsNonEmptyField(t *testing.T) {
	p := Profile{Name: "Alice Smith", Skills: []string{"Go"}}

	// A response that mis-typed every field decodes to a zero Extracted.
	var ex Extracted
	if err := json.Unmarshal([]byte(`{"name":17,"skills":false}`), &ex); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	Merge(&p, ex)

	if p.Name != "Alice Smith" {
		t.Errorf("Name = %q; merge must not clear existing values", p.Name)
	}
	if !reflect.DeepEqual(p.Skills, []string{"Go"}) {
		t.Errorf("Skills = %v; merge must not clear existing values", p.Skills)
	}
}
