package engine

// AgeAsOf returns the civil age on asOf: the year difference, minus one while the
// (month, day) of asOf is still before that of dob.
func AgeAsOf(dob, asOf CivilDate) int {
	age := asOf.Year - dob.Year
	if asOf.Month < dob.Month || (asOf.Month == dob.Month && asOf.Day < dob.Day) {
		age--
	}
	return age
}

// UpcomingAge is the age turned on the given anniversary.
func UpcomingAge(dob, cycle CivilDate) int {
	return cycle.Year - dob.Year
}

// AgeBetween reports whether the age on asOf lies within the optional bounds.
func AgeBetween(dob, asOf CivilDate, minAge, maxAge *int) bool {
	age := AgeAsOf(dob, asOf)
	if minAge != nil && age < *minAge {
		return false
	}
	if maxAge != nil && age > *maxAge {
		return false
	}
	return true
}
