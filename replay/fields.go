package replay

import (
	"errors"
	"fmt"
	"sort"
)

// Record is the output of one execution, keyed by field name.
type Record map[string]any

// Fields partitions output fields. Claims must be exactly equal across runs;
// observations (timing, exploration order, run ids) may vary.
type Fields struct {
	Claims       []string `json:"claims" yaml:"claims"`
	Observations []string `json:"observations" yaml:"observations"`
}

func (s Fields) Validate() error {
	if len(s.Claims) == 0 {
		return errors.New("replay: at least one claim field is required")
	}
	seen := make(map[string]string, len(s.Claims)+len(s.Observations))
	for _, group := range []struct {
		kind   string
		fields []string
	}{{"claim", s.Claims}, {"observation", s.Observations}} {
		for _, f := range group.fields {
			if f == "" {
				return fmt.Errorf("replay: empty %s field name", group.kind)
			}
			if prev, ok := seen[f]; ok {
				return fmt.Errorf("replay: field %q listed as both %s and %s", f, prev, group.kind)
			}
			seen[f] = group.kind
		}
	}
	return nil
}

// Partition splits r. Fields in neither list are returned, sorted, as
// unclassified so they can be reported instead of silently ignored.
func (s Fields) Partition(r Record) (claims, observations Record, unclassified []string) {
	claims, observations = Record{}, Record{}
	isClaim := make(map[string]bool, len(s.Claims))
	for _, c := range s.Claims {
		isClaim[c] = true
	}
	isObs := make(map[string]bool, len(s.Observations))
	for _, o := range s.Observations {
		isObs[o] = true
	}
	for k, v := range r {
		switch {
		case isClaim[k]:
			claims[k] = v
		case isObs[k]:
			observations[k] = v
		default:
			unclassified = append(unclassified, k)
		}
	}
	sort.Strings(unclassified)
	return claims, observations, unclassified
}
