package evaluation

import (
	"sort"
	"strings"

	"github.com/asaschachar/optimizely-manager-go/types"
)

// Attributes filled in from the user when the caller has not set them
const (
	UserAgentAttribute      = "$opt_user_agent"
	BrowserNameAttribute    = "browser_name"
	BrowserVersionAttribute = "browser_version"
	OSNameAttribute         = "os_name"
	OSVersionAttribute      = "os_version"
	CountryAttribute        = "country"
)

// ProjectEvaluator decides feature flags from an Optimizely project datafile.
// A flag is on for a user when a running feature test buckets them into a
// variation with featureEnabled, or, failing that, when a rollout rule whose
// audience they match does. It is immutable once built.
type ProjectEvaluator struct {
	project  *compiledProject
	lookups  *Lookups
	revision string
}

func NewProjectEvaluator(datafile types.Datafile, lookups *Lookups) (*ProjectEvaluator, error) {
	project, err := compileProject(datafile)
	if err != nil {
		return nil, err
	}
	return &ProjectEvaluator{
		project:  project,
		lookups:  lookups,
		revision: datafile.RevisionString(),
	}, nil
}

// Revision is the revision of the datafile the evaluator was built from
func (e *ProjectEvaluator) Revision() string {
	return e.revision
}

func (e *ProjectEvaluator) IsFeatureEnabled(featureKey string, user types.User) bool {
	feature, ok := e.project.features[featureKey]
	if !ok {
		return false
	}
	return e.eval(feature, user.ID, e.attributes(user))
}

// EnabledFeatures returns the sorted keys of every flag that is on for user
func (e *ProjectEvaluator) EnabledFeatures(user types.User) []string {
	attributes := e.attributes(user)
	enabled := make([]string, 0)
	for key, feature := range e.project.features {
		if e.eval(feature, user.ID, attributes) {
			enabled = append(enabled, key)
		}
	}
	sort.Strings(enabled)
	return enabled
}

func (e *ProjectEvaluator) eval(feature *compiledFeature, userID string, attributes map[string]interface{}) bool {
	bucketingID := userID
	if id, ok := attributes[BucketingIDAttribute].(string); ok {
		bucketingID = id
	}
	for _, experiment := range feature.experiments {
		if v := e.experimentVariation(experiment, userID, bucketingID, attributes); v != nil {
			return v.FeatureEnabled
		}
	}
	if v := e.rolloutVariation(feature.rollout, bucketingID, attributes); v != nil {
		return v.FeatureEnabled
	}
	return false
}

func (e *ProjectEvaluator) experimentVariation(experiment *compiledExperiment, userID string, bucketingID string, attributes map[string]interface{}) *variation {
	if experiment.Status != statusRunning {
		return nil
	}
	if key, ok := experiment.ForcedVariations[userID]; ok {
		if v, ok := experiment.variationsByKey[key]; ok {
			return v
		}
	}
	if !e.inAudience(experiment, attributes) {
		return nil
	}
	if g := experiment.group; g != nil && g.Policy == groupPolicyRandom {
		if allocate(bucketValue(bucketingID, g.ID), g.TrafficAllocation) != experiment.ID {
			return nil
		}
	}
	return bucket(experiment, bucketingID)
}

// rolloutVariation walks the targeting rules in order. The first rule whose
// audience matches decides: when the user is bucketed out of it they skip
// straight to the last, everyone else, rule.
func (e *ProjectEvaluator) rolloutVariation(rules []*compiledExperiment, bucketingID string, attributes map[string]interface{}) *variation {
	if len(rules) == 0 {
		return nil
	}
	last := len(rules) - 1
	for _, rule := range rules[:last] {
		if !e.inAudience(rule, attributes) {
			continue
		}
		if v := bucket(rule, bucketingID); v != nil {
			return v
		}
		break
	}
	if e.inAudience(rules[last], attributes) {
		return bucket(rules[last], bucketingID)
	}
	return nil
}

func (e *ProjectEvaluator) inAudience(experiment *compiledExperiment, attributes map[string]interface{}) bool {
	if experiment.audiences == nil {
		return true
	}
	return experiment.audiences.evaluate(func(audienceID string) matchResult {
		conditions, ok := e.project.audiences[audienceID]
		if !ok {
			return matchUnknown
		}
		return conditions.evaluate(func(c attributeCondition) matchResult {
			return c.evaluate(attributes)
		})
	}) == matchTrue
}

func bucket(experiment *compiledExperiment, bucketingID string) *variation {
	id := allocate(bucketValue(bucketingID, experiment.ID), experiment.TrafficAllocation)
	if id == "" {
		return nil
	}
	return experiment.variationsByID[id]
}

// attributes copies the user's attributes and adds the ones derived from the
// user agent and ip address. Attributes the caller set are never replaced.
func (e *ProjectEvaluator) attributes(user types.User) map[string]interface{} {
	attributes := make(map[string]interface{}, len(user.Attributes)+6)
	for k, v := range user.Attributes {
		attributes[k] = v
	}
	setDefault := func(key string, value string) {
		if value == "" {
			return
		}
		if _, ok := attributes[key]; !ok {
			attributes[key] = value
		}
	}

	if user.UserAgent != "" {
		setDefault(UserAgentAttribute, user.UserAgent)
		if client := e.lookups.parseUserAgent(user.UserAgent); client != nil {
			setDefault(BrowserNameAttribute, client.UserAgent.Family)
			setDefault(BrowserVersionAttribute, strings.Join(removeEmptyStrings([]string{client.UserAgent.Major, client.UserAgent.Minor, client.UserAgent.Patch}), "."))
			setDefault(OSNameAttribute, client.Os.Family)
			setDefault(OSVersionAttribute, strings.Join(removeEmptyStrings([]string{client.Os.Major, client.Os.Minor, client.Os.Patch, client.Os.PatchMinor}), "."))
		}
	}
	if user.IPAddress != "" {
		if country, ok := e.lookups.lookupCountry(user.IPAddress); ok {
			setDefault(CountryAttribute, country)
		}
	}
	return attributes
}
