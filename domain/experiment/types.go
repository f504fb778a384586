package experiment

import (
	"sort"
	"strconv"

	"gamelearn/domain/core"
)

// Phase identifies which analysis pass a trial record belongs to
type Phase string

const (
	PhasePractice Phase = "practice"
	PhasePostTest Phase = "posttest"
	PhaseSurvey   Phase = "survey"
)

// Factor is a named design factor relevant to the models.
// Gamified is within-subject; group and order are between-subject
// counterbalancing factors.
type Factor string

const (
	FactorGamified Factor = "gamified"
	FactorGroup    Factor = "group"
	FactorOrder    Factor = "order"
)

// TrialRecord is one observed event of the experiment. Records are
// owned by the dataset and immutable after load. Correct, RTMillis and
// Rating are nullable: nil means the value was not observed, never zero.
type TrialRecord struct {
	Subject       core.SubjectID `json:"subject" db:"subject_id"`
	Block         int            `json:"block" db:"block"`
	Condition     string         `json:"condition" db:"condition"`
	Gamified      bool           `json:"gamified" db:"gamified"`
	Group         string         `json:"group" db:"exp_group"`
	GamifiedFirst bool           `json:"gamified_first" db:"gamified_first"`
	Item          core.ItemID    `json:"item" db:"item_id"`
	Phase         Phase          `json:"phase" db:"phase"`
	Question      string         `json:"question,omitempty" db:"question"`
	Correct       *bool          `json:"correct,omitempty" db:"correct"`
	RTMillis      *float64       `json:"rt_ms,omitempty" db:"rt_ms"`
	Rating        *float64       `json:"rating,omitempty" db:"rating"`
}

// FactorLabel returns the categorical label a record carries for a
// design factor. Boolean factors report "false"/"true" so that the
// lexicographic level order puts the reference level first.
func (r TrialRecord) FactorLabel(f Factor) string {
	switch f {
	case FactorGamified:
		return strconv.FormatBool(r.Gamified)
	case FactorGroup:
		return r.Group
	case FactorOrder:
		return strconv.FormatBool(r.GamifiedFirst)
	}
	return ""
}

// Sample is the full analysis sample for one outcome variable
type Sample []TrialRecord

// Subjects returns the distinct subject ids in the sample, sorted
func (s Sample) Subjects() []core.SubjectID {
	seen := make(map[core.SubjectID]bool)
	var out []core.SubjectID
	for _, r := range s {
		if !seen[r.Subject] {
			seen[r.Subject] = true
			out = append(out, r.Subject)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Items returns the distinct item ids in the sample, sorted
func (s Sample) Items() []core.ItemID {
	seen := make(map[core.ItemID]bool)
	var out []core.ItemID
	for _, r := range s {
		if !seen[r.Item] {
			seen[r.Item] = true
			out = append(out, r.Item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FactorLevels returns the distinct labels a factor takes in the
// sample, sorted lexicographically
func (s Sample) FactorLevels(f Factor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s {
		label := r.FactorLabel(f)
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// Filter returns the subset of the sample for which keep returns true
func (s Sample) Filter(keep func(TrialRecord) bool) Sample {
	var out Sample
	for _, r := range s {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
