package app

import (
	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
	"gamelearn/internal/mixedmodel"
)

// OutcomeSpec is the configuration value for one outcome variable: the
// analysis pass it comes from, the response accessor, and the model
// family and random-effect structure. Every outcome goes through the
// same engine; none has its own code path.
type OutcomeSpec struct {
	Key      core.OutcomeKey
	Phase    experiment.Phase
	Question string // survey question filter, empty for trial outcomes
	Family   model.Family
	Random   model.RandomSpec
	Response func(experiment.TrialRecord) (float64, bool)
}

// Select returns the full analysis sample for the outcome
func (o OutcomeSpec) Select(records experiment.Sample) experiment.Sample {
	return records.Filter(func(r experiment.TrialRecord) bool {
		if r.Phase != o.Phase {
			return false
		}
		if o.Question != "" && r.Question != o.Question {
			return false
		}
		return true
	})
}

// FitConfig converts the outcome definition into a model-fitting configuration
func (o OutcomeSpec) FitConfig() mixedmodel.Config {
	return mixedmodel.Config{
		Outcome:  o.Key,
		Family:   o.Family,
		Random:   o.Random,
		Response: o.Response,
	}
}

// Response accessors shared across outcome specs

func accuracyResponse(r experiment.TrialRecord) (float64, bool) {
	if r.Correct == nil {
		return 0, false
	}
	if *r.Correct {
		return 1, true
	}
	return 0, true
}

func rtResponse(r experiment.TrialRecord) (float64, bool) {
	if r.RTMillis == nil {
		return 0, false
	}
	return *r.RTMillis, true
}

func ratingResponse(r experiment.TrialRecord) (float64, bool) {
	if r.Rating == nil {
		return 0, false
	}
	return *r.Rating, true
}

// scoreResponse reconstructs the per-trial game score: a correct answer
// earns 100 points plus a speed bonus that decays to zero at 3000 ms
func scoreResponse(r experiment.TrialRecord) (float64, bool) {
	if r.Correct == nil || r.RTMillis == nil {
		return 0, false
	}
	if !*r.Correct {
		return 0, true
	}
	bonus := (3000 - *r.RTMillis) / 30
	if bonus < 0 {
		bonus = 0
	}
	return 100 + bonus, true
}

// Survey question identifiers of the post-session questionnaire
const (
	QuestionJOL        = "judgment_of_learning"
	QuestionEnjoyment  = "enjoyment"
	QuestionMotivation = "motivation"
	QuestionEffort     = "effort"
	QuestionRelevance  = "perceived_relevance" // asked only under gamified feedback
)

var (
	trialRandom   = model.RandomSpec{SubjectIntercept: true, ItemIntercept: true}
	subjectRandom = model.RandomSpec{SubjectIntercept: true}
)

// DefaultOutcomes is the catalog of outcome variables across the three
// analysis passes. Trial-level outcomes carry the crossed item
// intercept; subject-level survey outcomes do not.
func DefaultOutcomes() []OutcomeSpec {
	return []OutcomeSpec{
		{Key: "practice_accuracy", Phase: experiment.PhasePractice, Family: model.FamilyBinomialLogit, Random: trialRandom, Response: accuracyResponse},
		{Key: "practice_rt", Phase: experiment.PhasePractice, Family: model.FamilyLogLinear, Random: trialRandom, Response: rtResponse},
		{Key: "practice_score", Phase: experiment.PhasePractice, Family: model.FamilyIdentity, Random: subjectRandom, Response: scoreResponse},
		{Key: "posttest_accuracy", Phase: experiment.PhasePostTest, Family: model.FamilyBinomialLogit, Random: trialRandom, Response: accuracyResponse},
		{Key: "posttest_rt", Phase: experiment.PhasePostTest, Family: model.FamilyLogLinear, Random: trialRandom, Response: rtResponse},
		{Key: "judgment_of_learning", Phase: experiment.PhaseSurvey, Question: QuestionJOL, Family: model.FamilyIdentity, Random: subjectRandom, Response: ratingResponse},
		{Key: "enjoyment", Phase: experiment.PhaseSurvey, Question: QuestionEnjoyment, Family: model.FamilyIdentity, Random: subjectRandom, Response: ratingResponse},
		{Key: "motivation", Phase: experiment.PhaseSurvey, Question: QuestionMotivation, Family: model.FamilyIdentity, Random: subjectRandom, Response: ratingResponse},
		{Key: "effort", Phase: experiment.PhaseSurvey, Question: QuestionEffort, Family: model.FamilyIdentity, Random: subjectRandom, Response: ratingResponse},
		{Key: "perceived_relevance", Phase: experiment.PhaseSurvey, Question: QuestionRelevance, Family: model.FamilyIdentity, Random: subjectRandom, Response: ratingResponse},
	}
}

// OutcomeByKey looks up an outcome spec in a catalog
func OutcomeByKey(specs []OutcomeSpec, key core.OutcomeKey) (OutcomeSpec, bool) {
	for _, o := range specs {
		if o.Key == key {
			return o, true
		}
	}
	return OutcomeSpec{}, false
}
