package evaluation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/asaschachar/optimizely-manager-go/types"
)

func (e *RuleEvaluator) evalCondition(user types.User, cond ruleCondition) bool {
	var value interface{}
	switch strings.ToLower(cond.Type) {
	case "public":
		return true
	case "user_id":
		value = user.ID
	case "user_field":
		value = getFromUser(user, cond.Field)
	case "ip_based":
		value = getFromUser(user, cond.Field)
		if value == nil || value == "" {
			value = e.lookups.getFromIP(user, cond.Field)
		}
	case "ua_based":
		value = getFromUser(user, cond.Field)
		if value == nil || value == "" {
			value = e.lookups.getFromUserAgent(user, cond.Field)
		}
	default:
		// unknown condition types never match
		return false
	}

	switch strings.ToLower(cond.Operator) {
	case "gt":
		return compareNumbers(value, cond.TargetValue, func(x, y float64) bool { return x > y })
	case "gte":
		return compareNumbers(value, cond.TargetValue, func(x, y float64) bool { return x >= y })
	case "lt":
		return compareNumbers(value, cond.TargetValue, func(x, y float64) bool { return x < y })
	case "lte":
		return compareNumbers(value, cond.TargetValue, func(x, y float64) bool { return x <= y })
	case "version_gt":
		return compareVersions(value, cond.TargetValue, func(x, y string) bool { return compareVersionsHelper(x, y) > 0 })
	case "version_gte":
		return compareVersions(value, cond.TargetValue, func(x, y string) bool { return compareVersionsHelper(x, y) >= 0 })
	case "version_lt":
		return compareVersions(value, cond.TargetValue, func(x, y string) bool { return compareVersionsHelper(x, y) < 0 })
	case "version_lte":
		return compareVersions(value, cond.TargetValue, func(x, y string) bool { return compareVersionsHelper(x, y) <= 0 })

	case "any":
		return arrayAny(cond.TargetValue, value, func(x, y interface{}) bool {
			return compareStrings(x, y, true, func(s1, s2 string) bool { return s1 == s2 })
		})
	case "none":
		return !arrayAny(cond.TargetValue, value, func(x, y interface{}) bool {
			return compareStrings(x, y, true, func(s1, s2 string) bool { return s1 == s2 })
		})
	case "str_starts_with_any":
		return arrayAny(cond.TargetValue, value, func(x, y interface{}) bool {
			return compareStrings(x, y, true, func(s1, s2 string) bool { return strings.HasPrefix(s1, s2) })
		})
	case "str_ends_with_any":
		return arrayAny(cond.TargetValue, value, func(x, y interface{}) bool {
			return compareStrings(x, y, true, func(s1, s2 string) bool { return strings.HasSuffix(s1, s2) })
		})
	case "str_contains_any":
		return arrayAny(cond.TargetValue, value, func(x, y interface{}) bool {
			return compareStrings(x, y, true, func(s1, s2 string) bool { return strings.Contains(s1, s2) })
		})

	case "eq", "neq":
		var equal bool
		// string fields cannot be nil, so nil targets also match empty strings
		if cond.TargetValue == nil {
			equal = value == nil || value == ""
		} else {
			equal = reflect.DeepEqual(value, cond.TargetValue)
		}
		if strings.ToLower(cond.Operator) == "eq" {
			return equal
		}
		return !equal
	}
	return false
}

func removeEmptyStrings(s []string) []string {
	var r []string
	for _, str := range s {
		if str != "" {
			r = append(r, str)
		}
	}
	return r
}

func getNumericValue(a interface{}) (float64, bool) {
	switch a := a.(type) {
	case int:
		return float64(a), true
	case int64:
		return float64(a), true
	case float32:
		return float64(a), true
	case float64:
		return a, true
	case string:
		f, err := strconv.ParseFloat(a, 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func compareNumbers(a, b interface{}, fun func(x, y float64) bool) bool {
	numA, okA := getNumericValue(a)
	numB, okB := getNumericValue(b)
	if !okA || !okB {
		return false
	}
	return fun(numA, numB)
}

func compareStrings(s1 interface{}, s2 interface{}, ignoreCase bool, fun func(x, y string) bool) bool {
	if s1 == nil || s2 == nil {
		return false
	}
	str1 := fmt.Sprintf("%v", s1)
	str2 := fmt.Sprintf("%v", s2)
	if ignoreCase {
		return fun(strings.ToLower(str1), strings.ToLower(str2))
	}
	return fun(str1, str2)
}

func compareVersionsHelper(v1 string, v2 string) int {
	v1Parts := strings.Split(v1, ".")
	v2Parts := strings.Split(v2, ".")
	for i := 0; i < maxInt(len(v1Parts), len(v2Parts)); i++ {
		p1, p2 := "0", "0"
		if i < len(v1Parts) {
			p1 = v1Parts[i]
		}
		if i < len(v2Parts) {
			p2 = v2Parts[i]
		}

		n1, _ := strconv.ParseInt(p1, 10, 64)
		n2, _ := strconv.ParseInt(p2, 10, 64)
		if n1 < n2 {
			return -1
		}
		if n1 > n2 {
			return 1
		}
	}
	return 0
}

func compareVersions(a, b interface{}, fun func(x, y string) bool) bool {
	strA, okA := a.(string)
	strB, okB := b.(string)
	if !okA || !okB {
		return false
	}
	v1 := strings.Split(strA, "-")[0]
	v2 := strings.Split(strB, "-")[0]
	if len(v1) == 0 || len(v2) == 0 {
		return false
	}
	return fun(v1, v2)
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func arrayAny(arr interface{}, val interface{}, fun func(x, y interface{}) bool) bool {
	if array, ok := arr.([]interface{}); ok {
		for _, arrVal := range array {
			if fun(val, arrVal) {
				return true
			}
		}
	}
	return false
}
