package manager

import (
	"runtime"
	"sync"

	"github.com/google/uuid"
)

const (
	sdkType    = "go-optimizely-manager"
	sdkVersion = "0.3.0"
)

type managerMetadata struct {
	SDKType         string `json:"sdkType"`
	SDKVersion      string `json:"sdkVersion"`
	LanguageVersion string `json:"languageVersion"`
	SessionID       string `json:"sessionID"`
}

var (
	sessionID     string
	sessionIDOnce sync.Once
)

// SessionID identifies this process in request headers
func SessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.NewString()
	})
	return sessionID
}

func getManagerMetadata() managerMetadata {
	return managerMetadata{
		SDKType:         sdkType,
		SDKVersion:      sdkVersion,
		LanguageVersion: runtime.Version()[2:],
		SessionID:       SessionID(),
	}
}

// Version of this package, as sent in request headers
func Version() string {
	return sdkVersion
}
