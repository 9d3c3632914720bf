package evaluation

import (
	"encoding/json"
	"fmt"

	"github.com/asaschachar/optimizely-manager-go/types"
)

// projectDatafile is the part of an Optimizely project datafile that feature
// decisions read. Events, attributes and variables are ignored.
type projectDatafile struct {
	FeatureFlags   []projectFeature `json:"featureFlags"`
	Experiments    []experiment     `json:"experiments"`
	Groups         []group          `json:"groups"`
	Rollouts       []rollout        `json:"rollouts"`
	Audiences      []audience       `json:"audiences"`
	TypedAudiences []audience       `json:"typedAudiences"`
}

type projectFeature struct {
	ID            string   `json:"id"`
	Key           string   `json:"key"`
	RolloutID     string   `json:"rolloutId"`
	ExperimentIDs []string `json:"experimentIds"`
}

type experiment struct {
	ID                 string            `json:"id"`
	Key                string            `json:"key"`
	Status             string            `json:"status"`
	AudienceIDs        []string          `json:"audienceIds"`
	AudienceConditions interface{}       `json:"audienceConditions"`
	TrafficAllocation  []trafficRange    `json:"trafficAllocation"`
	Variations         []variation       `json:"variations"`
	ForcedVariations   map[string]string `json:"forcedVariations"`
}

type variation struct {
	ID             string `json:"id"`
	Key            string `json:"key"`
	FeatureEnabled bool   `json:"featureEnabled"`
}

type trafficRange struct {
	EntityID   string `json:"entityId"`
	EndOfRange int    `json:"endOfRange"`
}

type group struct {
	ID                string         `json:"id"`
	Policy            string         `json:"policy"`
	TrafficAllocation []trafficRange `json:"trafficAllocation"`
	Experiments       []experiment   `json:"experiments"`
}

type rollout struct {
	ID          string       `json:"id"`
	Experiments []experiment `json:"experiments"`
}

type audience struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Conditions interface{} `json:"conditions"`
}

const (
	statusRunning = "Running"
	// experiments in a random group are mutually exclusive
	groupPolicyRandom = "random"
)

// compiledExperiment is an experiment or rollout rule with its audiences
// parsed and its variations indexed.
type compiledExperiment struct {
	experiment
	// nil targets everyone
	audiences       *conditionTree[string]
	group           *group
	variationsByID  map[string]*variation
	variationsByKey map[string]*variation
}

type compiledFeature struct {
	key         string
	experiments []*compiledExperiment
	rollout     []*compiledExperiment
}

type compiledProject struct {
	features  map[string]*compiledFeature
	audiences map[string]*conditionTree[attributeCondition]
}

func compileProject(datafile types.Datafile) (*compiledProject, error) {
	raw, err := json.Marshal(datafile)
	if err != nil {
		return nil, err
	}
	var parsed projectDatafile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("invalid project datafile: %w", err)
	}

	project := &compiledProject{
		features:  make(map[string]*compiledFeature, len(parsed.FeatureFlags)),
		audiences: make(map[string]*conditionTree[attributeCondition]),
	}
	// typed audiences take precedence over legacy ones with the same id
	for _, list := range [][]audience{parsed.Audiences, parsed.TypedAudiences} {
		for _, a := range list {
			tree, err := parseAudienceConditions(a.Conditions)
			if err != nil {
				return nil, fmt.Errorf("audience %s: %w", a.ID, err)
			}
			project.audiences[a.ID] = tree
		}
	}

	experiments := make(map[string]*compiledExperiment)
	for _, e := range parsed.Experiments {
		compiled, err := compileExperiment(e, nil)
		if err != nil {
			return nil, err
		}
		experiments[e.ID] = compiled
	}
	for i := range parsed.Groups {
		g := &parsed.Groups[i]
		for _, e := range g.Experiments {
			compiled, err := compileExperiment(e, g)
			if err != nil {
				return nil, err
			}
			experiments[e.ID] = compiled
		}
	}

	rollouts := make(map[string][]*compiledExperiment, len(parsed.Rollouts))
	for _, r := range parsed.Rollouts {
		rules := make([]*compiledExperiment, 0, len(r.Experiments))
		for _, e := range r.Experiments {
			compiled, err := compileExperiment(e, nil)
			if err != nil {
				return nil, fmt.Errorf("rollout %s: %w", r.ID, err)
			}
			rules = append(rules, compiled)
		}
		rollouts[r.ID] = rules
	}

	for _, f := range parsed.FeatureFlags {
		if f.Key == "" {
			return nil, fmt.Errorf("feature flag %q without a key", f.ID)
		}
		feature := &compiledFeature{key: f.Key, rollout: rollouts[f.RolloutID]}
		for _, id := range f.ExperimentIDs {
			// unknown experiment ids are skipped, the rollout still applies
			if e, ok := experiments[id]; ok {
				feature.experiments = append(feature.experiments, e)
			}
		}
		project.features[f.Key] = feature
	}
	return project, nil
}

func compileExperiment(e experiment, g *group) (*compiledExperiment, error) {
	compiled := &compiledExperiment{
		experiment:      e,
		group:           g,
		variationsByID:  make(map[string]*variation, len(e.Variations)),
		variationsByKey: make(map[string]*variation, len(e.Variations)),
	}
	for i := range e.Variations {
		v := &compiled.Variations[i]
		compiled.variationsByID[v.ID] = v
		compiled.variationsByKey[v.Key] = v
	}

	switch {
	case e.AudienceConditions != nil:
		tree, err := parseConditionTree(e.AudienceConditions, parseAudienceID)
		if err != nil {
			return nil, fmt.Errorf("experiment %s: %w", e.Key, err)
		}
		// an empty list targets everyone
		if tree.leaf != nil || len(tree.children) > 0 {
			compiled.audiences = tree
		}
	case len(e.AudienceIDs) > 0:
		tree := &conditionTree[string]{operator: operatorOr}
		for _, id := range e.AudienceIDs {
			tree.children = append(tree.children, &conditionTree[string]{leaf: &id})
		}
		compiled.audiences = tree
	}
	return compiled, nil
}
