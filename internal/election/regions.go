package election

import "strings"

// Regions is a bidirectional lookup between region names and their postal
// abbreviations. Lookups are case-insensitive and ignore surrounding space.
type Regions struct {
	byKey  map[string]string
	abbrev map[string]string
	names  []string
}

var usRegions = [][2]string{
	{"Alabama", "AL"}, {"Alaska", "AK"}, {"Arizona", "AZ"}, {"Arkansas", "AR"},
	{"California", "CA"}, {"Colorado", "CO"}, {"Connecticut", "CT"}, {"Delaware", "DE"},
	{"District of Columbia", "DC"}, {"Florida", "FL"}, {"Georgia", "GA"}, {"Hawaii", "HI"},
	{"Idaho", "ID"}, {"Illinois", "IL"}, {"Indiana", "IN"}, {"Iowa", "IA"},
	{"Kansas", "KS"}, {"Kentucky", "KY"}, {"Louisiana", "LA"}, {"Maine", "ME"},
	{"Maryland", "MD"}, {"Massachusetts", "MA"}, {"Michigan", "MI"}, {"Minnesota", "MN"},
	{"Mississippi", "MS"}, {"Missouri", "MO"}, {"Montana", "MT"}, {"Nebraska", "NE"},
	{"Nevada", "NV"}, {"New Hampshire", "NH"}, {"New Jersey", "NJ"}, {"New Mexico", "NM"},
	{"New York", "NY"}, {"North Carolina", "NC"}, {"North Dakota", "ND"}, {"Ohio", "OH"},
	{"Oklahoma", "OK"}, {"Oregon", "OR"}, {"Pennsylvania", "PA"}, {"Rhode Island", "RI"},
	{"South Carolina", "SC"}, {"South Dakota", "SD"}, {"Tennessee", "TN"}, {"Texas", "TX"},
	{"Utah", "UT"}, {"Vermont", "VT"}, {"Virginia", "VA"}, {"Washington", "WA"},
	{"West Virginia", "WV"}, {"Wisconsin", "WI"}, {"Wyoming", "WY"},
}

// USRegions returns the table of US states plus the District of Columbia.
func USRegions() *Regions {
	return NewRegions(usRegions)
}

// NewRegions builds a table from (name, abbreviation) pairs.
func NewRegions(pairs [][2]string) *Regions {
	r := &Regions{
		byKey:  make(map[string]string, 2*len(pairs)),
		abbrev: make(map[string]string, len(pairs)),
		names:  make([]string, 0, len(pairs)),
	}
	for _, p := range pairs {
		name, abbr := p[0], p[1]
		r.byKey[normalize(name)] = name
		r.byKey[normalize(abbr)] = name
		r.abbrev[name] = abbr
		r.names = append(r.names, name)
	}
	return r
}

// Resolve maps a name or abbreviation to the canonical region name.
func (r *Regions) Resolve(text string) (string, bool) {
	name, ok := r.byKey[normalize(text)]
	return name, ok
}

// Abbreviation returns the postal code for a canonical region name.
func (r *Regions) Abbreviation(region string) (string, bool) {
	abbr, ok := r.abbrev[region]
	return abbr, ok
}

// Names returns canonical names in table order.
func (r *Regions) Names() []string {
	return append([]string(nil), r.names...)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
