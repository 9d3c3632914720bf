package manager

const uninitializedMessage = `IsFeatureEnabled called but the datafile is not yet available.

If you just started a web application or app server, try the request again.

OR try configuring the manager earlier in your application startup code
OR move your IsFeatureEnabled call later in your application lifecycle
OR wait on OnReady() before evaluating feature flags.

If this error persists, check that the sdk key is correct and the datafile url is reachable.`

// UninitializedClient stands in for the evaluator until a datafile is
// available, so application code can hold a client from startup.
type UninitializedClient struct {
	logger *OutputLogger
}

func NewUninitializedClient(logger *OutputLogger) *UninitializedClient {
	return &UninitializedClient{logger: logger}
}

// IsFeatureEnabled always reports the feature as disabled
func (c *UninitializedClient) IsFeatureEnabled(featureKey string, user User) bool {
	c.logger.Warn(uninitializedMessage)
	return false
}
