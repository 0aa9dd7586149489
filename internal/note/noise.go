package note

// noiseTranscripts are outputs the transcriber produces for silent or near-silent audio.
// Entries are in normalized form.
var noiseTranscripts = map[string]struct{}{
	"you":                 {},
	"bye":                 {},
	"bye bye":             {},
	"thanks":              {},
	"thank you":           {},
	"thanks for watching": {},
	"okay":                {},
	"so":                  {},
	"uh":                  {},
	"um":                  {},
	"hmm":                 {},
}

// minAlnum is the fewest letters and digits a usable transcript may contain.
const minAlnum = 2

// IsNoise reports whether a transcript carries no usable content: a known
// silence token, or fewer than two alphanumeric characters once normalized.
func IsNoise(transcript string) bool {
	canonical := Normalize(transcript)
	if AlnumCount(canonical) < minAlnum {
		return true
	}
	_, ok := noiseTranscripts[canonical]
	return ok
}
