package dataset

import "regexp"

// namePattern keeps dataset names safe for URL paths, Kafka message keys and
// Redis key globs. One leading alphanumeric, then up to 63 of the same plus
// dot, dash and underscore.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ValidName reports whether name is acceptable as a dataset identifier.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
