package evaluation

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/asaschachar/optimizely-manager-go/types"
)

type featureFlag struct {
	Key     string     `json:"key"`
	Enabled bool       `json:"enabled"`
	Salt    string     `json:"salt"`
	Rules   []flagRule `json:"rules"`
}

type flagRule struct {
	ID             string          `json:"id"`
	Salt           string          `json:"salt"`
	PassPercentage float64         `json:"passPercentage"`
	Conditions     []ruleCondition `json:"conditions"`
	Expression     string          `json:"expression"`
	program        *vm.Program
}

type ruleCondition struct {
	Type        string      `json:"type"`
	Operator    string      `json:"operator"`
	Field       string      `json:"field"`
	TargetValue interface{} `json:"targetValue"`
}

type datafileFlags struct {
	Revision     interface{}   `json:"revision"`
	FeatureFlags []featureFlag `json:"featureFlags"`
}

// parseFlags extracts the feature flags from a datafile and compiles rule
// expressions. Any failure rejects the whole datafile.
func parseFlags(datafile types.Datafile) (map[string]featureFlag, error) {
	raw, err := json.Marshal(datafile)
	if err != nil {
		return nil, err
	}
	var parsed datafileFlags
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("invalid featureFlags: %w", err)
	}

	flags := make(map[string]featureFlag, len(parsed.FeatureFlags))
	for _, flag := range parsed.FeatureFlags {
		if flag.Key == "" {
			return nil, fmt.Errorf("feature flag without a key")
		}
		for i, rule := range flag.Rules {
			if rule.Expression == "" {
				continue
			}
			program, err := expr.Compile(rule.Expression, expr.Env(expressionEnv(types.User{})), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("flag %s rule %s: %w", flag.Key, rule.ID, err)
			}
			flag.Rules[i].program = program
		}
		flags[flag.Key] = flag
	}
	return flags, nil
}

func expressionEnv(user types.User) map[string]interface{} {
	attributes := user.Attributes
	if attributes == nil {
		attributes = map[string]interface{}{}
	}
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id":        user.ID,
			"ip":        user.IPAddress,
			"userAgent": user.UserAgent,
		},
		"attributes": attributes,
	}
}
