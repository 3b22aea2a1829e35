package app

// Step is the outcome of a navigation request.
type Step int

const (
	StepStay Step = iota
	StepMoved
	StepFinalize
)

// Back returns the previous phase index; index 0 stays put.
func Back(index, count int) (int, Step) {
	if index <= 0 || count == 0 {
		return 0, StepStay
	}
	return index - 1, StepMoved
}

// Next returns the following phase index, or StepFinalize on the last phase.
// It never moves past the last phase.
func Next(index, count int) (int, Step) {
	if count == 0 {
		return 0, StepStay
	}
	if index >= count-1 {
		return count - 1, StepFinalize
	}
	return index + 1, StepMoved
}

// Progress is index / count. The last phase alone never reads as complete;
// it reaches 1 only once a report was generated.
func Progress(index, count int, reported bool) float64 {
	if reported {
		return 1
	}
	if count <= 0 {
		return 0
	}
	return float64(ClampPhase(index, count)) / float64(count)
}

// ClampPhase bounds a restored index to [0, count-1].
func ClampPhase(index, count int) int {
	switch {
	case count <= 0 || index < 0:
		return 0
	case index > count-1:
		return count - 1
	}
	return index
}
