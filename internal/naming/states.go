package naming

import "strings"

// knownStates lists the state and territory names used by the monitoring network.
var knownStates = map[string]struct{}{}

func init() {
	for _, s := range []string{
		"Alabama", "Alaska", "Arizona", "Arkansas", "California", "Colorado",
		"Connecticut", "Delaware", "District Of Columbia", "Florida", "Georgia",
		"Hawaii", "Idaho", "Illinois", "Indiana", "Iowa", "Kansas", "Kentucky",
		"Louisiana", "Maine", "Maryland", "Massachusetts", "Michigan", "Minnesota",
		"Mississippi", "Missouri", "Montana", "Nebraska", "Nevada", "New Hampshire",
		"New Jersey", "New Mexico", "New York", "North Carolina", "North Dakota",
		"Ohio", "Oklahoma", "Oregon", "Pennsylvania", "Rhode Island",
		"South Carolina", "South Dakota", "Tennessee", "Texas", "Utah", "Vermont",
		"Virginia", "Washington", "West Virginia", "Wisconsin", "Wyoming",
		"Puerto Rico", "Virgin Islands", "Guam", "American Samoa",
		"Northern Mariana Islands", "Country Of Mexico", "Canada",
	} {
		knownStates[strings.ToLower(s)] = struct{}{}
	}
}

// IsKnownState reports whether name is a recognised state or territory.
// Parsing never rejects unknown names; callers use this to flag likely mis-splits.
func IsKnownState(name string) bool {
	_, ok := knownStates[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
