package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// matchResult is a three valued outcome. An audience condition that cannot
// be evaluated, for example because the attribute is missing or has the wrong
// type, is unknown rather than false, so that "not" does not turn it into a
// match.
type matchResult int8

const (
	matchUnknown matchResult = iota
	matchFalse
	matchTrue
)

func matchOf(b bool) matchResult {
	if b {
		return matchTrue
	}
	return matchFalse
}

const (
	operatorAnd = "and"
	operatorOr  = "or"
	operatorNot = "not"
)

// conditionTree is a parsed ["and"|"or"|"not", ...] list. Leaves are audience
// ids in experiment audience conditions and attribute conditions inside an
// audience.
type conditionTree[L any] struct {
	operator string
	children []*conditionTree[L]
	leaf     *L
}

func parseConditionTree[L any](raw interface{}, parseLeaf func(interface{}) (L, error)) (*conditionTree[L], error) {
	list, ok := raw.([]interface{})
	if !ok {
		leaf, err := parseLeaf(raw)
		if err != nil {
			return nil, err
		}
		return &conditionTree[L]{leaf: &leaf}, nil
	}
	tree := &conditionTree[L]{operator: operatorOr}
	if len(list) > 0 {
		if op, isString := list[0].(string); isString {
			switch op {
			case operatorAnd, operatorOr, operatorNot:
				tree.operator = op
				list = list[1:]
			}
		}
	}
	for _, item := range list {
		child, err := parseConditionTree(item, parseLeaf)
		if err != nil {
			return nil, err
		}
		tree.children = append(tree.children, child)
	}
	return tree, nil
}

func (t *conditionTree[L]) evaluate(evalLeaf func(L) matchResult) matchResult {
	if t.leaf != nil {
		return evalLeaf(*t.leaf)
	}
	switch t.operator {
	case operatorAnd:
		sawUnknown := false
		for _, child := range t.children {
			switch child.evaluate(evalLeaf) {
			case matchFalse:
				return matchFalse
			case matchUnknown:
				sawUnknown = true
			}
		}
		if sawUnknown {
			return matchUnknown
		}
		return matchTrue
	case operatorNot:
		if len(t.children) == 0 {
			return matchUnknown
		}
		switch t.children[0].evaluate(evalLeaf) {
		case matchTrue:
			return matchFalse
		case matchFalse:
			return matchTrue
		}
		return matchUnknown
	default:
		sawUnknown := false
		for _, child := range t.children {
			switch child.evaluate(evalLeaf) {
			case matchTrue:
				return matchTrue
			case matchUnknown:
				sawUnknown = true
			}
		}
		if sawUnknown {
			return matchUnknown
		}
		return matchFalse
	}
}

type attributeCondition struct {
	Type  string
	Name  string
	Match string
	Value interface{}
}

const customAttributeType = "custom_attribute"

func parseAttributeCondition(raw interface{}) (attributeCondition, error) {
	fields, ok := raw.(map[string]interface{})
	if !ok {
		return attributeCondition{}, fmt.Errorf("audience condition must be an object, got %T", raw)
	}
	condition := attributeCondition{Value: fields["value"]}
	condition.Type, _ = fields["type"].(string)
	condition.Name, _ = fields["name"].(string)
	condition.Match, _ = fields["match"].(string)
	return condition, nil
}

func parseAudienceID(raw interface{}) (string, error) {
	id, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("audience id must be a string, got %T", raw)
	}
	return id, nil
}

// parseAudienceConditions accepts conditions either as a JSON encoded string
// (legacy audiences) or as an already decoded list (typed audiences).
func parseAudienceConditions(raw interface{}) (*conditionTree[attributeCondition], error) {
	if encoded, ok := raw.(string); ok {
		var decoded interface{}
		if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
			return nil, fmt.Errorf("invalid audience conditions: %w", err)
		}
		raw = decoded
	}
	return parseConditionTree(raw, parseAttributeCondition)
}

func (c attributeCondition) evaluate(attributes map[string]interface{}) matchResult {
	if c.Type != customAttributeType {
		return matchUnknown
	}
	value, present := attributes[c.Name]
	switch c.Match {
	case "", "exact":
		return matchExact(c.Value, value)
	case "exists":
		return matchOf(present && value != nil)
	case "substring":
		target, ok1 := c.Value.(string)
		actual, ok2 := value.(string)
		if !ok1 || !ok2 {
			return matchUnknown
		}
		return matchOf(strings.Contains(actual, target))
	case "gt":
		return matchNumbers(c.Value, value, func(actual, target float64) bool { return actual > target })
	case "ge":
		return matchNumbers(c.Value, value, func(actual, target float64) bool { return actual >= target })
	case "lt":
		return matchNumbers(c.Value, value, func(actual, target float64) bool { return actual < target })
	case "le":
		return matchNumbers(c.Value, value, func(actual, target float64) bool { return actual <= target })
	case "semver_eq":
		return matchSemver(c.Value, value, func(cmp int) bool { return cmp == 0 })
	case "semver_lt":
		return matchSemver(c.Value, value, func(cmp int) bool { return cmp < 0 })
	case "semver_le":
		return matchSemver(c.Value, value, func(cmp int) bool { return cmp <= 0 })
	case "semver_gt":
		return matchSemver(c.Value, value, func(cmp int) bool { return cmp > 0 })
	case "semver_ge":
		return matchSemver(c.Value, value, func(cmp int) bool { return cmp >= 0 })
	}
	return matchUnknown
}

// finiteNumber accepts JSON and Go numeric types but never numeric strings
func finiteNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func matchExact(target interface{}, actual interface{}) matchResult {
	if actual == nil {
		return matchUnknown
	}
	switch t := target.(type) {
	case string:
		a, ok := actual.(string)
		if !ok {
			return matchUnknown
		}
		return matchOf(a == t)
	case bool:
		a, ok := actual.(bool)
		if !ok {
			return matchUnknown
		}
		return matchOf(a == t)
	}
	targetNumber, ok := finiteNumber(target)
	if !ok {
		return matchUnknown
	}
	actualNumber, ok := finiteNumber(actual)
	if !ok {
		return matchUnknown
	}
	return matchOf(actualNumber == targetNumber)
}

func matchNumbers(target interface{}, actual interface{}, fun func(actual, target float64) bool) matchResult {
	targetNumber, ok := finiteNumber(target)
	if !ok {
		return matchUnknown
	}
	actualNumber, ok := finiteNumber(actual)
	if !ok {
		return matchUnknown
	}
	return matchOf(fun(actualNumber, targetNumber))
}

func matchSemver(target interface{}, actual interface{}, fun func(cmp int) bool) matchResult {
	targetVersion, ok1 := target.(string)
	actualVersion, ok2 := actual.(string)
	if !ok1 || !ok2 {
		return matchUnknown
	}
	cmp, ok := compareSemver(actualVersion, targetVersion)
	if !ok {
		return matchUnknown
	}
	return matchOf(fun(cmp))
}

type semver struct {
	parts      []int64
	prerelease string
}

func parseSemver(v string) (semver, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.Contains(v, " ") {
		return semver{}, false
	}
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	var version semver
	if i := strings.IndexByte(v, '-'); i >= 0 {
		version.prerelease = v[i+1:]
		v = v[:i]
		if version.prerelease == "" {
			return semver{}, false
		}
	}
	for _, part := range strings.Split(v, ".") {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return semver{}, false
		}
		version.parts = append(version.parts, n)
	}
	if len(version.parts) > 3 {
		return semver{}, false
	}
	return version, true
}

// compareSemver compares actual against target over the parts the target
// names, so "2.1.5" equals a target of "2.1".
func compareSemver(actual string, target string) (int, bool) {
	a, ok := parseSemver(actual)
	if !ok {
		return 0, false
	}
	t, ok := parseSemver(target)
	if !ok {
		return 0, false
	}
	for i, targetPart := range t.parts {
		if i >= len(a.parts) {
			return -1, true
		}
		if a.parts[i] < targetPart {
			return -1, true
		}
		if a.parts[i] > targetPart {
			return 1, true
		}
	}
	switch {
	case a.prerelease == "" && t.prerelease == "":
		return 0, true
	case a.prerelease != "" && t.prerelease == "":
		if len(t.parts) < len(a.parts) {
			// target "2.1" covers "2.1.0-beta"
			return 0, true
		}
		return -1, true
	case a.prerelease == "" && t.prerelease != "":
		return 1, true
	}
	return strings.Compare(a.prerelease, t.prerelease), true
}
