package trigger

import "strings"

// serviceTaxonomy maps keywords found in free-text appointment types to the
// service sub-trigger keys workflows can subscribe to. First match wins in
// declaration order.
var serviceTaxonomy = []struct {
	keyword string
	key     string
}{
	{"botox", "toxins"},
	{"toxin", "toxins"},
	{"filler", "filler"},
	{"juvederm", "filler"},
	{"morpheus", "morpheus8"},
	{"consult", "consultation"},
}

// DeriveTriggerKey keyword-matches the appointment type against the service
// taxonomy. Unrecognized types fall back to the base event key, so a
// workflow subscribed to the base type always still matches.
func DeriveTriggerKey(appointmentType, baseKey string) string {
	lower := strings.ToLower(appointmentType)

	for _, entry := range serviceTaxonomy {
		if strings.Contains(lower, entry.keyword) {
			return entry.key
		}
	}

	return baseKey
}
