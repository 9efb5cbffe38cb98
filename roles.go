package idsession

// elevatedGroups are the group names that grant the elevated-role flag when
// no configuration overrides them.
var elevatedGroups = []string{"SUPERADMIN", "SUPER_ADMIN"}

// IsElevated reports whether groups contains one of the super-admin group
// names. Matching is case-sensitive and exact; the result is derived from
// the membership list on every call and never cached independently of it.
func IsElevated(groups []string) bool {
	return isElevatedIn(groups, elevatedGroups)
}

func isElevatedIn(groups, elevated []string) bool {
	for _, g := range groups {
		for _, e := range elevated {
			if g == e {
				return true
			}
		}
	}
	return false
}
