package vitals

// Condition is a coarse wellness bucket derived from a final result.
type Condition int

const (
	ConditionUnknown Condition = iota
	ConditionDangerous
	ConditionBad
	ConditionGood
	ConditionVeryGood
)

func (c Condition) String() string {
	switch c {
	case ConditionDangerous:
		return "dangerous"
	case ConditionBad:
		return "bad"
	case ConditionGood:
		return "good"
	case ConditionVeryGood:
		return "very_good"
	default:
		return "unknown"
	}
}

// Classify buckets a (bpm, spo2) pair. Both values are truncated to whole
// numbers first. Rules are checked from most to least severe; a pair matching
// none of them is unknown.
func Classify(bpmf, spo2f float32) Condition {
	bpm, spo2 := int(bpmf), int(spo2f)
	switch {
	case spo2 < 89 || bpm < 40 || bpm > 120:
		return ConditionDangerous
	case (spo2 >= 90 && spo2 <= 92) || (bpm >= 40 && bpm <= 49) || (bpm >= 101 && bpm <= 120):
		return ConditionBad
	case spo2 >= 90 && spo2 <= 95 && bpm >= 60 && bpm <= 100:
		return ConditionGood
	case spo2 > 95 && bpm >= 60 && bpm <= 100:
		return ConditionVeryGood
	default:
		return ConditionUnknown
	}
}
