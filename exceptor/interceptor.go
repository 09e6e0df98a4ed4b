package exceptor

// FunctionInterceptor is the external collaborator that lets the
// coordinator virtualize signal/sigaction: code elsewhere in the hosting
// process that calls signal(2)/sigaction(2) on a managed signal should see
// its own call succeed and its own disposition take effect for chaining
// purposes, without ever racing the trampoline's own sigaction calls.
// NewLibcInterceptor (interceptor_libc_linux.go) is the real
// implementation, hooking libc's entry points directly; noopInterceptor
// below is a no-hooking stand-in for callers that accept the narrower
// guarantee of only managing the signals they installed themselves.
type FunctionInterceptor interface {
	// ReplaceSignalFunctions installs hooks on signal(2)/sigaction(2) (and
	// platform equivalents) that redirect calls targeting a managed
	// signal through onInstall before they reach the kernel.
	ReplaceSignalFunctions(onInstall func(sig int, newDisp SavedDisposition) SavedDisposition) error

	// RevertSignalFunctions removes the hooks installed above.
	RevertSignalFunctions() error
}

// noopInterceptor installs no hooks, so calls to signal/sigaction made
// by other parts of the hosting process bypass the coordinator entirely.
// Attach still manages the managed signals directly; this only affects
// whether third-party calls to signal/sigaction on those same signals
// are seen. Used as the Backend default when no interceptor is supplied.
type noopInterceptor struct{}

func (noopInterceptor) ReplaceSignalFunctions(func(int, SavedDisposition) SavedDisposition) error {
	return nil
}

func (noopInterceptor) RevertSignalFunctions() error { return nil }
