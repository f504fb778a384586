package testkit

import (
	"reflect"
	"testing"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
)

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(DefaultParams(99))
	b := Generate(DefaultParams(99))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different samples")
	}
	c := Generate(DefaultParams(100))
	if len(c) == 0 || reflect.DeepEqual(a, c) {
		t.Fatal("different seeds produced identical samples")
	}
}

func TestGenerate_BalancedDesign(t *testing.T) {
	p := DefaultParams(1)
	p.Subjects = 10 // rounds up to 12
	sample := Generate(p)

	subjects := sample.Subjects()
	if len(subjects) != 12 {
		t.Fatalf("got %d subjects, want 12", len(subjects))
	}

	type cell struct{ group, order string }
	counts := map[cell]int{}
	for _, id := range subjects {
		one := sample.Filter(func(r experiment.TrialRecord) bool { return r.Subject == id })
		counts[cell{one[0].Group, one[0].FactorLabel(experiment.FactorOrder)}]++

		levels := one.FactorLevels(experiment.FactorGamified)
		if len(levels) != 2 {
			t.Errorf("subject %s saw %d feedback conditions, want 2", id, len(levels))
		}
	}
	if len(counts) != 4 {
		t.Fatalf("got %d between-subject cells, want 4: %v", len(counts), counts)
	}
	for c, n := range counts {
		if n != 3 {
			t.Errorf("cell %v has %d subjects, want 3", c, n)
		}
	}
}

func TestGenerate_ValueRanges(t *testing.T) {
	sample := Generate(DefaultParams(5))
	for _, r := range sample {
		switch r.Phase {
		case experiment.PhasePractice, experiment.PhasePostTest:
			if r.Correct == nil || r.RTMillis == nil {
				t.Fatalf("trial row missing correctness or rt: %+v", r)
			}
			if *r.RTMillis < 200 || *r.RTMillis > 5000 {
				t.Errorf("rt %g out of [200, 5000]", *r.RTMillis)
			}
			if r.Rating != nil {
				t.Errorf("trial row carries a survey rating: %+v", r)
			}
		case experiment.PhaseSurvey:
			if r.Rating == nil {
				t.Fatalf("survey row missing rating: %+v", r)
			}
			if *r.Rating < 1 || *r.Rating > 7 {
				t.Errorf("rating %g out of [1, 7]", *r.Rating)
			}
		}
	}
}

func TestGenerate_RelevanceOnlyUnderGamified(t *testing.T) {
	sample := Generate(DefaultParams(3))
	relevance := sample.Filter(func(r experiment.TrialRecord) bool {
		return r.Question == "perceived_relevance"
	})
	if len(relevance) == 0 {
		t.Fatal("no relevance ratings generated")
	}
	perSubject := map[core.SubjectID]int{}
	for _, r := range relevance {
		if !r.Gamified {
			t.Fatalf("relevance asked outside the gamified condition: %+v", r)
		}
		perSubject[r.Subject]++
	}
	// At least two ratings per subject so a subject intercept is fittable
	for id, n := range perSubject {
		if n < 2 {
			t.Errorf("subject %s has %d relevance ratings, want >= 2", id, n)
		}
	}
}
