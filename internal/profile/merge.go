package profile

import (
	"encoding/json"
	"strings"
)

// FlexString decodes a model-returned value that should be a string but may
// arrive as a list of strings. Any other shape decodes to empty, so the merge
// falls back to the current value.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = FlexString(strings.TrimSpace(strings.Join(list, ", ")))
		return nil
	}
	*f = ""
	return nil
}

// FlexList decodes a model-returned value that should be a list of strings
// but may arrive as a single comma-separated string. Any other shape decodes
// to an empty list.
type FlexList []string

func (f *FlexList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = trimAll(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = trimAll(strings.Split(s, ","))
		return nil
	}
	*f = nil
	return nil
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// Extracted is the normalized result of a CV autofill call. All variant
// handling happens at decode time; after unmarshalling, every field has a
// fixed shape.
type Extracted struct {
	Name           FlexString `json:"name"`
	Title          FlexString `json:"title"`
	Location       FlexString `json:"location"`
	Experience     FlexList   `json:"experience"`
	Skills         FlexList   `json:"skills"`
	SoftSkills     FlexList   `json:"softSkills"`
	Learning       FlexList   `json:"learning"`
	Certifications FlexList   `json:"certifications"`
	Goals          FlexString `json:"goals"`
}

// Merge applies extracted fields onto p. The merge is additive: an omitted,
// empty, or mis-typed extracted field never clears an existing value.
func Merge(p *Profile, ex Extracted) {
	if ex.Name != "" {
		p.Name = string(ex.Name)
	}
	if ex.Title != "" {
		p.Title = string(ex.Title)
	}
	if ex.Location != "" {
		p.Location = string(ex.Location)
	}
	if len(ex.Experience) > 0 {
		p.Experience = []string(ex.Experience)
	}
	if len(ex.Skills) > 0 {
		p.Skills = []string(ex.Skills)
	}
	if len(ex.SoftSkills) > 0 {
		p.SoftSkills = []string(ex.SoftSkills)
	}
	if len(ex.Learning) > 0 {
		p.Learning = []string(ex.Learning)
	}
	if len(ex.Certifications) > 0 {
		p.Certifications = []string(ex.Certifications)
	}
	if ex.Goals != "" {
		p.Goals = string(ex.Goals)
	}
}
