// Package manager keeps an Optimizely datafile in sync with its CDN copy and
// serves feature flag decisions from it
package manager

var instance = NewSingleton()

// Configure sets up the package-level DatafileManager with the given options.
// Calling it again replaces the previous manager.
func Configure(options Options) *DatafileManager {
	return instance.Configure(options)
}

// GetClient returns the package-level DatafileManager, or a ConfigurationError
// if Configure has not been called
func GetClient() (*DatafileManager, error) {
	return instance.GetClient()
}

// OnReady returns a channel closed once the configured manager has a datafile
func OnReady() (<-chan struct{}, error) {
	return instance.OnReady()
}

// IsConfigured returns whether Configure has been called
func IsConfigured() bool {
	return instance.IsConfigured()
}

// Reset discards the package-level manager. Only use this in tests.
func Reset() {
	instance.Reset()
}
