// Package testkit generates deterministic synthetic experiment data.
// It backs the test suites and the demo mode of the CLI, producing a
// balanced 2x2x2 design with known effect sizes so fitted estimates
// can be checked against what was planted.
package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
)

// Params controls the shape and planted effects of a generated dataset
type Params struct {
	Seed           int64
	Subjects       int // rounded up to a multiple of 4 for balance
	ItemsPerBlock  int
	PracticeBlocks int // per condition

	// Planted effects on the latent scales
	BaseAccuracy float64 // probability correct in the non-gamified condition
	GamifiedOdds float64 // multiplicative odds shift under gamified feedback
	BaseRT       float64 // median response time in milliseconds
	GamifiedRT   float64 // multiplicative shift under gamified feedback
	BaseRating   float64 // mean survey rating on the 1..7 scale
	SubjectSD    float64 // between-subject spread on the latent scales
}

// DefaultParams is a medium-sized dataset with a clear gamified benefit
func DefaultParams(seed int64) Params {
	return Params{
		Seed:           seed,
		Subjects:       32,
		ItemsPerBlock:  10,
		PracticeBlocks: 2,
		BaseAccuracy:   0.65,
		GamifiedOdds:   1.6,
		BaseRT:         1400,
		GamifiedRT:     0.9,
		BaseRating:     4.5,
		SubjectSD:      0.4,
	}
}

// Generate produces the full trial table for one synthetic experiment.
// The design is fully balanced: group and presentation order split the
// subjects into four equal between-subject cells, and every subject
// sees both feedback conditions.
func Generate(p Params) experiment.Sample {
	rng := rand.New(rand.NewSource(p.Seed))
	nSubjects := p.Subjects
	if rem := nSubjects % 4; rem != 0 {
		nSubjects += 4 - rem
	}

	var records experiment.Sample
	for s := 0; s < nSubjects; s++ {
		subject := core.SubjectID(fmt.Sprintf("S%03d", s+1))
		group := "A"
		if s%2 == 1 {
			group = "B"
		}
		gamifiedFirst := (s/2)%2 == 0
		offset := rng.NormFloat64() * p.SubjectSD

		block := 0
		for _, gamified := range blockOrder(gamifiedFirst, p.PracticeBlocks) {
			block++
			records = append(records, practiceBlock(rng, p, subject, group, gamifiedFirst, gamified, block, offset)...)
		}
		for _, gamified := range []bool{false, true} {
			block++
			records = append(records, posttestBlock(rng, p, subject, group, gamifiedFirst, gamified, block, offset)...)
		}
		records = append(records, surveyBlock(rng, p, subject, group, gamifiedFirst, offset)...)
	}
	return records
}

func blockOrder(gamifiedFirst bool, perCondition int) []bool {
	var order []bool
	first, second := gamifiedFirst, !gamifiedFirst
	for i := 0; i < perCondition; i++ {
		order = append(order, first)
	}
	for i := 0; i < perCondition; i++ {
		order = append(order, second)
	}
	return order
}

func practiceBlock(rng *rand.Rand, p Params, subject core.SubjectID, group string, gamifiedFirst, gamified bool, block int, offset float64) experiment.Sample {
	var out experiment.Sample
	for i := 0; i < p.ItemsPerBlock; i++ {
		item := core.ItemID(fmt.Sprintf("I%03d", i+1))
		correct := rng.Float64() < accuracyProb(p, gamified, offset)
		rt := drawRT(rng, p, gamified, offset)
		out = append(out, experiment.TrialRecord{
			Subject:       subject,
			Block:         block,
			Condition:     conditionLabel(gamified),
			Gamified:      gamified,
			Group:         group,
			GamifiedFirst: gamifiedFirst,
			Item:          item,
			Phase:         experiment.PhasePractice,
			Correct:       &correct,
			RTMillis:      &rt,
		})
	}
	return out
}

func posttestBlock(rng *rand.Rand, p Params, subject core.SubjectID, group string, gamifiedFirst, gamified bool, block int, offset float64) experiment.Sample {
	var out experiment.Sample
	for i := 0; i < p.ItemsPerBlock; i++ {
		item := core.ItemID(fmt.Sprintf("P%03d", i+1))
		correct := rng.Float64() < accuracyProb(p, gamified, offset)
		rt := drawRT(rng, p, gamified, offset)
		out = append(out, experiment.TrialRecord{
			Subject:       subject,
			Block:         block,
			Condition:     conditionLabel(gamified),
			Gamified:      gamified,
			Group:         group,
			GamifiedFirst: gamifiedFirst,
			Item:          item,
			Phase:         experiment.PhasePostTest,
			Correct:       &correct,
			RTMillis:      &rt,
		})
	}
	return out
}

// surveyBlock emits one questionnaire pass per practice block, so each
// survey outcome has within-subject replication
func surveyBlock(rng *rand.Rand, p Params, subject core.SubjectID, group string, gamifiedFirst bool, offset float64) experiment.Sample {
	questions := []string{"judgment_of_learning", "enjoyment", "motivation", "effort"}
	var out experiment.Sample
	block := 0
	for _, gamified := range blockOrder(gamifiedFirst, p.PracticeBlocks) {
		block++
		qs := questions
		if gamified {
			// Relevance of the game elements is only asked about the
			// gamified condition
			qs = append(qs, "perceived_relevance")
		}
		for _, q := range qs {
			rating := clampRating(p.BaseRating + offset + rng.NormFloat64()*0.8 + gamifiedShift(gamified))
			out = append(out, experiment.TrialRecord{
				Subject:       subject,
				Block:         block,
				Condition:     conditionLabel(gamified),
				Gamified:      gamified,
				Group:         group,
				GamifiedFirst: gamifiedFirst,
				Phase:         experiment.PhaseSurvey,
				Question:      q,
				Rating:        &rating,
			})
		}
	}
	return out
}

func accuracyProb(p Params, gamified bool, offset float64) float64 {
	odds := p.BaseAccuracy / (1 - p.BaseAccuracy) * math.Exp(offset)
	if gamified {
		odds *= p.GamifiedOdds
	}
	return odds / (1 + odds)
}

func drawRT(rng *rand.Rand, p Params, gamified bool, offset float64) float64 {
	mu := math.Log(p.BaseRT) + offset*0.25
	if gamified {
		mu += math.Log(p.GamifiedRT)
	}
	rt := math.Exp(mu + rng.NormFloat64()*0.3)
	if rt < 200 {
		rt = 200
	}
	if rt > 5000 {
		rt = 5000
	}
	return math.Round(rt)
}

func gamifiedShift(gamified bool) float64 {
	if gamified {
		return 0.6
	}
	return 0
}

func conditionLabel(gamified bool) string {
	if gamified {
		return "game"
	}
	return "control"
}

func clampRating(v float64) float64 {
	r := math.Round(v)
	if r < 1 {
		return 1
	}
	if r > 7 {
		return 7
	}
	return r
}
