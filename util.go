package manager

import (
	"fmt"
	"strings"
)

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func getDefaultURL(baseURL string, sdkKey string) string {
	base := strings.TrimSuffix(defaultString(baseURL, DefaultCDNBase), "/")
	return fmt.Sprintf("%s/datafiles/%s.json", base, sdkKey)
}

func getCacheKey(sdkKey string) string {
	return CacheKeyPrefix + sdkKey
}

func toError(err interface{}) error {
	errAsError, ok := err.(error)
	if ok {
		return errAsError
	} else {
		return fmt.Errorf("%v", err)
	}
}
