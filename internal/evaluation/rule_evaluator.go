package evaluation

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/asaschachar/optimizely-manager-go/types"
)

// RuleEvaluator reads the compact rules format, where every entry in
// "featureFlags" carries its own targeting conditions, optional expressions
// and pass percentages. It is immutable once built; a new datafile means a
// new RuleEvaluator.
type RuleEvaluator struct {
	flags    map[string]featureFlag
	lookups  *Lookups
	revision string
}

func NewRuleEvaluator(datafile types.Datafile, lookups *Lookups) (*RuleEvaluator, error) {
	flags, err := parseFlags(datafile)
	if err != nil {
		return nil, err
	}
	return &RuleEvaluator{
		flags:    flags,
		lookups:  lookups,
		revision: datafile.RevisionString(),
	}, nil
}

// Revision is the revision of the datafile the evaluator was built from
func (e *RuleEvaluator) Revision() string {
	return e.revision
}

func (e *RuleEvaluator) IsFeatureEnabled(featureKey string, user types.User) bool {
	flag, ok := e.flags[featureKey]
	if !ok {
		return false
	}
	return e.eval(user, flag)
}

// EnabledFeatures returns the sorted keys of every flag that is on for user
func (e *RuleEvaluator) EnabledFeatures(user types.User) []string {
	enabled := make([]string, 0)
	for key, flag := range e.flags {
		if e.eval(user, flag) {
			enabled = append(enabled, key)
		}
	}
	sort.Strings(enabled)
	return enabled
}

func (e *RuleEvaluator) eval(user types.User, flag featureFlag) bool {
	if !flag.Enabled {
		return false
	}
	if len(flag.Rules) == 0 {
		return true
	}
	for _, rule := range flag.Rules {
		if e.evalRule(user, rule) {
			return evalPassPercent(user, rule, flag)
		}
	}
	return false
}

func (e *RuleEvaluator) evalRule(user types.User, rule flagRule) bool {
	for _, cond := range rule.Conditions {
		if !e.evalCondition(user, cond) {
			return false
		}
	}
	if rule.program != nil {
		out, err := expr.Run(rule.program, expressionEnv(user))
		if err != nil {
			return false
		}
		pass, ok := out.(bool)
		return ok && pass
	}
	return true
}

func evalPassPercent(user types.User, rule flagRule, flag featureFlag) bool {
	ruleSalt := rule.Salt
	if ruleSalt == "" {
		ruleSalt = rule.ID
	}
	hash := getHash(fmt.Sprintf("%s.%s.%s", flag.Salt, ruleSalt, user.ID))

	return hash%10000 < uint64(rule.PassPercentage*100)
}

func getHash(key string) uint64 {
	hasher := sha256.New()
	bytes := []byte(key)
	hasher.Write(bytes)
	return binary.BigEndian.Uint64(hasher.Sum(nil))
}

func getFromUser(user types.User, field string) interface{} {
	var value interface{}
	switch strings.ToLower(field) {
	case "id", "userid", "user_id":
		value = user.ID
	case "ip", "ipaddress", "ip_address":
		value = user.IPAddress
	case "useragent", "user_agent":
		value = user.UserAgent
	}

	if value == "" || value == nil {
		if attribute, ok := user.Attributes[field]; ok {
			value = attribute
		} else if attribute, ok := user.Attributes[strings.ToLower(field)]; ok {
			value = attribute
		}
	}

	return value
}
