package evaluation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaschachar/optimizely-manager-go/types"
)

const testDatafile = `{
	"revision": "42",
	"featureFlags": [
		{"key": "checkout_flow", "enabled": true, "salt": "cf"},
		{"key": "disabled_flag", "enabled": false, "salt": "df"},
		{"key": "half_rollout", "enabled": true, "salt": "hr",
			"rules": [{"id": "everyone", "passPercentage": 50, "conditions": [{"type": "public"}]}]},
		{"key": "employees", "enabled": true, "salt": "emp",
			"rules": [{"id": "email", "passPercentage": 100,
				"conditions": [{"type": "user_field", "field": "email", "operator": "str_ends_with_any", "targetValue": ["@optimizely.com"]}]}]},
		{"key": "pro_plan", "enabled": true, "salt": "pp",
			"rules": [{"id": "pro", "passPercentage": 100, "expression": "attributes.plan == \"pro\" && user.id != \"\""}]},
		{"key": "allow_list", "enabled": true, "salt": "al",
			"rules": [
				{"id": "ids", "passPercentage": 100, "conditions": [{"type": "user_id", "operator": "any", "targetValue": ["user123", "user456"]}]},
				{"id": "nobody", "passPercentage": 0, "conditions": [{"type": "public"}]}
			]},
		{"key": "new_app", "enabled": true, "salt": "na",
			"rules": [{"id": "version", "passPercentage": 100,
				"conditions": [{"type": "user_field", "field": "app_version", "operator": "version_gte", "targetValue": "2.1.0"}]}]},
		{"key": "adults", "enabled": true, "salt": "ad",
			"rules": [{"id": "age", "passPercentage": 100,
				"conditions": [{"type": "user_field", "field": "age", "operator": "gte", "targetValue": 18}]}]},
		{"key": "chrome_only", "enabled": true, "salt": "co",
			"rules": [{"id": "chrome", "passPercentage": 100,
				"conditions": [{"type": "ua_based", "field": "browser_name", "operator": "any", "targetValue": ["Chrome"]}]}]},
		{"key": "us_only", "enabled": true, "salt": "us",
			"rules": [{"id": "us", "passPercentage": 100,
				"conditions": [{"type": "ip_based", "field": "country", "operator": "any", "targetValue": ["US"]}]}]},
		{"key": "mystery", "enabled": true, "salt": "my",
			"rules": [{"id": "unknown", "passPercentage": 100, "conditions": [{"type": "moon_phase"}]}]}
	]
}`

func newTestEvaluator(t *testing.T, lookups *Lookups) *RuleEvaluator {
	t.Helper()
	datafile, err := types.ParseDatafile([]byte(testDatafile))
	require.NoError(t, err)
	evaluator, err := NewRuleEvaluator(datafile, lookups)
	require.NoError(t, err)
	return evaluator
}

func noLookups() *Lookups {
	return NewLookups(LookupOptions{DisableUAParser: true, DisableCountryLookup: true})
}

func TestFlagWithoutRules(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())
	assert.True(t, evaluator.IsFeatureEnabled("checkout_flow", types.NewUser("user123")))
	assert.False(t, evaluator.IsFeatureEnabled("disabled_flag", types.NewUser("user123")))
	assert.False(t, evaluator.IsFeatureEnabled("not_in_datafile", types.NewUser("user123")))
	assert.Equal(t, "42", evaluator.Revision())
}

func TestUserFieldConditions(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())

	employee := types.NewUser("a")
	employee.Attributes["email"] = "jane@Optimizely.com"
	assert.True(t, evaluator.IsFeatureEnabled("employees", employee))

	outsider := types.NewUser("b")
	outsider.Attributes["email"] = "joe@example.com"
	assert.False(t, evaluator.IsFeatureEnabled("employees", outsider))
	assert.False(t, evaluator.IsFeatureEnabled("employees", types.NewUser("c")))

	adult := types.NewUser("d")
	adult.Attributes["age"] = 30
	assert.True(t, evaluator.IsFeatureEnabled("adults", adult))
	adult.Attributes["age"] = "12"
	assert.False(t, evaluator.IsFeatureEnabled("adults", adult))

	app := types.NewUser("e")
	app.Attributes["app_version"] = "2.10.1-beta"
	assert.True(t, evaluator.IsFeatureEnabled("new_app", app))
	app.Attributes["app_version"] = "2.0.9"
	assert.False(t, evaluator.IsFeatureEnabled("new_app", app))
}

func TestFirstMatchingRuleDecides(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())
	assert.True(t, evaluator.IsFeatureEnabled("allow_list", types.NewUser("user456")))
	// falls through to the public rule with a zero pass percentage
	assert.False(t, evaluator.IsFeatureEnabled("allow_list", types.NewUser("someone_else")))
}

func TestExpressions(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())

	pro := types.NewUser("user1")
	pro.Attributes["plan"] = "pro"
	assert.True(t, evaluator.IsFeatureEnabled("pro_plan", pro))

	free := types.NewUser("user1")
	free.Attributes["plan"] = "free"
	assert.False(t, evaluator.IsFeatureEnabled("pro_plan", free))
	assert.False(t, evaluator.IsFeatureEnabled("pro_plan", types.NewUser("user1")))
}

func TestUnknownConditionTypeNeverPasses(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())
	assert.False(t, evaluator.IsFeatureEnabled("mystery", types.NewUser("user123")))
}

func TestPassPercentageBucketing(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())

	passed := 0
	for i := 0; i < 1000; i++ {
		user := types.NewUser(fmt.Sprintf("user_%d", i))
		first := evaluator.IsFeatureEnabled("half_rollout", user)
		require.Equal(t, first, evaluator.IsFeatureEnabled("half_rollout", user), "bucketing must be stable")
		if first {
			passed++
		}
	}
	assert.InDelta(t, 500, passed, 75)
}

func TestEnabledFeatures(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())
	user := types.NewUser("user123")
	user.Attributes["plan"] = "pro"
	assert.Equal(t, []string{"allow_list", "checkout_flow", "pro_plan"}, filterKnown(evaluator.EnabledFeatures(user), "half_rollout"))
}

// filterKnown drops keys whose outcome depends on bucketing
func filterKnown(keys []string, drop string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != drop {
			out = append(out, key)
		}
	}
	return out
}

func TestInvalidExpressionFailsTheDatafile(t *testing.T) {
	datafile := types.Datafile{
		"revision": "1",
		"featureFlags": []interface{}{
			map[string]interface{}{
				"key":     "broken",
				"enabled": true,
				"rules": []interface{}{
					map[string]interface{}{"id": "r", "passPercentage": 100, "expression": "attributes.plan ==="},
				},
			},
		},
	}
	_, err := NewRuleEvaluator(datafile, noLookups())
	assert.Error(t, err)
}

func TestDatafileWithoutFlags(t *testing.T) {
	evaluator, err := NewRuleEvaluator(types.Datafile{"revision": "3"}, nil)
	require.NoError(t, err)
	assert.False(t, evaluator.IsFeatureEnabled("anything", types.NewUser("u")))
}

func TestUserAgentAndCountryConditions(t *testing.T) {
	if testing.Short() {
		t.Skip("loads the user agent and ip tables")
	}
	lookups := NewLookups(LookupOptions{EnsureLoaded: true})
	lookups.Wait()
	evaluator := newTestEvaluator(t, lookups)

	chrome := types.NewUser("u1")
	chrome.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"
	assert.True(t, evaluator.IsFeatureEnabled("chrome_only", chrome))

	firefox := types.NewUser("u2")
	firefox.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"
	assert.False(t, evaluator.IsFeatureEnabled("chrome_only", firefox))

	seattle := types.NewUser("u3")
	seattle.IPAddress = "24.18.183.148"
	assert.True(t, evaluator.IsFeatureEnabled("us_only", seattle))

	mumbai := types.NewUser("u4")
	mumbai.IPAddress = "115.240.90.163"
	assert.False(t, evaluator.IsFeatureEnabled("us_only", mumbai))
}

func TestDisabledLookupsNeverMatch(t *testing.T) {
	evaluator := newTestEvaluator(t, noLookups())

	user := types.NewUser("u1")
	user.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"
	user.IPAddress = "24.18.183.148"
	assert.False(t, evaluator.IsFeatureEnabled("chrome_only", user))
	assert.False(t, evaluator.IsFeatureEnabled("us_only", user))

	// an explicit attribute wins over the lookup
	user.Attributes["country"] = "US"
	assert.True(t, evaluator.IsFeatureEnabled("us_only", user))
}
