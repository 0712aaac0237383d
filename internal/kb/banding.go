package kb

import (
	"github.com/helpibot/helpi/internal/domain"
)

// DecisionKind classifies the outcome of banding a ranked answer list.
type DecisionKind int

const (
	// DecisionDirect means the top answer is confident enough to state outright.
	DecisionDirect DecisionKind = iota
	// DecisionDisambiguate means the top 1-3 candidates are presented to the user.
	DecisionDisambiguate
	// DecisionNoMatch means nothing usable came back; the retry flow starts.
	DecisionNoMatch
)

// Decision is the banding outcome. Candidates is empty for NoMatch,
// holds exactly the answer to state for Direct, and a contiguous prefix
// of the ranked list (1-3 entries) for Disambiguate.
type Decision struct {
	Kind       DecisionKind
	Candidates []domain.ScoredAnswer
}

// Thresholds controls the confidence bands and candidate gap rules.
type Thresholds struct {
	// High: scores above this are answered directly.
	High float64
	// Low: scores at or below this count as no match.
	Low float64
	// SecondGap: the 2nd candidate is shown iff its score is within
	// this distance of the 1st.
	SecondGap float64
	// ThirdGap: the 3rd candidate is shown iff it is additionally
	// within this distance of the 2nd.
	ThirdGap float64
}

// DefaultThresholds are the bands the assistant has always used.
func DefaultThresholds() Thresholds {
	return Thresholds{
		High:      0.4,
		Low:       0.2,
		SecondGap: 0.1,
		ThirdGap:  0.075,
	}
}

// Band maps a ranked answer list (descending by score) to a decision.
// Pure: no side effects, input not retained. An empty list bands to
// NoMatch; callers that receive an empty list from the knowledge-base
// service should surface that as a service error before banding (the
// client in this package already does).
func Band(answers []domain.ScoredAnswer, t Thresholds) Decision {
	if len(answers) == 0 || answers[0].Score <= t.Low {
		return Decision{Kind: DecisionNoMatch}
	}

	top := answers[0]
	if top.Score > t.High {
		return Decision{Kind: DecisionDirect, Candidates: answers[:1]}
	}

	// Low < score <= High: disambiguate with up to three candidates.
	n := 1
	if len(answers) > 1 && top.Score-answers[1].Score <= t.SecondGap {
		n = 2
		if len(answers) > 2 && answers[1].Score-answers[2].Score <= t.ThirdGap {
			n = 3
		}
	}
	return Decision{Kind: DecisionDisambiguate, Candidates: answers[:n]}
}
