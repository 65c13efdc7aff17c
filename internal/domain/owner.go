package domain

import "regexp"

// OwnerType represents the kind of GitHub account
type OwnerType string

const (
	OwnerTypeUser         OwnerType = "user"
	OwnerTypeOrganization OwnerType = "organization"
)

// Owner represents a validated GitHub account
type Owner struct {
	Name string
	Type OwnerType
}

// GitHub login rules: alphanumeric with internal hyphens, no leading or
// trailing hyphen, at most 39 characters.
var ownerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9]|-[a-zA-Z0-9])*$`)

// ValidOwnerName reports whether name is an acceptable GitHub account name
func ValidOwnerName(name string) bool {
	if name == "" || len(name) > 39 {
		return false
	}
	return ownerNamePattern.MatchString(name)
}
