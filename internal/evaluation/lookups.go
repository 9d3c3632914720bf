package evaluation

import (
	"strings"
	"sync"

	countrylookup "github.com/statsig-io/ip3country-go"
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/asaschachar/optimizely-manager-go/types"
)

type LookupOptions struct {
	DisableUAParser      bool
	DisableCountryLookup bool
	// Wait for the tables to finish loading instead of skipping the lookup
	EnsureLoaded bool
}

// Lookups holds the user agent parser and ip country table. Both are
// expensive to load so they are loaded once in the background and shared by
// every evaluator built for a manager.
type Lookups struct {
	ua      *lazy[*uaparser.Parser]
	country *lazy[*countrylookup.CountryLookup]
}

func NewLookups(options LookupOptions) *Lookups {
	return &Lookups{
		ua:      newLazy(options.DisableUAParser, options.EnsureLoaded, uaparser.NewFromSaved),
		country: newLazy(options.DisableCountryLookup, options.EnsureLoaded, countrylookup.New),
	}
}

// Wait blocks until all enabled lookups are loaded
func (l *Lookups) Wait() {
	if l == nil {
		return
	}
	l.ua.wait()
	l.country.wait()
}

func (l *Lookups) parseUserAgent(ua string) *uaparser.Client {
	if l == nil {
		return nil
	}
	parser, ok := l.ua.get()
	if !ok {
		return nil
	}
	return parser.Parse(ua)
}

func (l *Lookups) lookupCountry(ip string) (string, bool) {
	if l == nil {
		return "", false
	}
	lookup, ok := l.country.get()
	if !ok {
		return "", false
	}
	return lookup.LookupIp(ip)
}

func (l *Lookups) getFromUserAgent(user types.User, field string) string {
	ua, ok := getFromUser(user, "useragent").(string)
	if !ok || ua == "" {
		return ""
	}
	client := l.parseUserAgent(ua)
	if client == nil {
		return ""
	}
	switch strings.ToLower(field) {
	case "os_name", "osname":
		return client.Os.Family
	case "os_version", "osversion":
		return strings.Join(removeEmptyStrings([]string{client.Os.Major, client.Os.Minor, client.Os.Patch, client.Os.PatchMinor}), ".")
	case "browser_name", "browsername":
		return client.UserAgent.Family
	case "browser_version", "browserversion":
		return strings.Join(removeEmptyStrings([]string{client.UserAgent.Major, client.UserAgent.Minor, client.UserAgent.Patch}), ".")
	}
	return ""
}

func (l *Lookups) getFromIP(user types.User, field string) string {
	if strings.ToLower(field) != "country" {
		return ""
	}

	if ip, ok := getFromUser(user, "ip").(string); ok && ip != "" {
		if res, lookupOK := l.lookupCountry(ip); lookupOK {
			return res
		}
	}

	return ""
}

// lazy loads a value in the background. Until it is loaded get reports false,
// unless waitForLoad is set, in which case get blocks for it.
type lazy[T any] struct {
	wg          sync.WaitGroup
	disabled    bool
	waitForLoad bool

	mu     sync.RWMutex
	value  T
	loaded bool
}

func newLazy[T any](disabled bool, waitForLoad bool, load func() T) *lazy[T] {
	l := &lazy[T]{disabled: disabled, waitForLoad: waitForLoad}
	if disabled {
		return l
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		value := load()
		l.mu.Lock()
		l.value, l.loaded = value, true
		l.mu.Unlock()
	}()
	return l
}

func (l *lazy[T]) wait() {
	if l.disabled {
		return
	}
	l.wg.Wait()
}

func (l *lazy[T]) get() (T, bool) {
	var zero T
	if l.disabled {
		return zero, false
	}
	if l.waitForLoad {
		l.wg.Wait()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.loaded {
		return zero, false
	}
	return l.value, true
}
