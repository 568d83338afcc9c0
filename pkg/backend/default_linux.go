//go:build linux

package backend

// Default returns the backend for this platform: perf.
func Default(env Env, opts ...Option) Backend {
	return NewPerf(env, opts...)
}
