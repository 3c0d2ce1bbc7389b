package frame

// Accumulation tracks how many samples per pixel the accumulation image holds.
type Accumulation struct {
	// Enabled blends every frame into the accumulation image. When false each
	// frame starts over.
	Enabled bool

	// SamplesPerPixel is the number of samples traced per frame.
	SamplesPerPixel uint32

	// MaxSamples stops accumulation once TotalSamples reaches it. Zero is unlimited.
	MaxSamples uint32

	// TotalSamples includes the samples of the frame being rendered.
	TotalSamples uint32

	reset bool
}

// Reset discards the accumulated samples before the next frame.
func (a *Accumulation) Reset() { a.reset = true }

// Converged reports whether the sample budget has been reached.
func (a *Accumulation) Converged() bool {
	return a.Enabled && !a.reset && a.MaxSamples > 0 && a.TotalSamples >= a.MaxSamples
}

// advance accounts for the samples of the next frame.
func (a *Accumulation) advance() {
	if a.reset || !a.Enabled {
		a.TotalSamples = 0
		a.reset = false
	}
	a.TotalSamples += a.SamplesPerPixel
}
