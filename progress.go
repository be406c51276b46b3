package ssar

// ProgressEvent reports how far an operation got.
type ProgressEvent struct {
	Operation string
	Plan      string
	Done      int
	Total     int
	Path      string
}

// Fraction returns Done/Total in [0,1].
func (e ProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 1
	}
	return float64(e.Done) / float64(e.Total)
}

// ProgressReporter receives progress events. Reporters must not block.
type ProgressReporter interface {
	Report(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ProgressEvent)

// Report implements ProgressReporter.
func (f ProgressFunc) Report(event ProgressEvent) {
	if f != nil {
		f(event)
	}
}

type noopProgress struct{}

func (noopProgress) Report(ProgressEvent) {}
