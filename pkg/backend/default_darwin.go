//go:build darwin && !xctrace

package backend

// sampleSeconds is how long the sample(1) fallback records.
const sampleSeconds = 10

// Default returns the backend for this platform: dtrace, with arch hinting
// and a sample(1) fallback for attached processes.
func Default(env Env, opts ...Option) Backend {
	opts = append([]Option{WithArchHint(true), WithSampleFallback(sampleSeconds)}, opts...)
	return NewDTrace(env, opts...)
}
