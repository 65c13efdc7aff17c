package domain

// Repository represents a GitHub repository as returned by the lister
type Repository struct {
	Owner    string
	Name     string
	FullName string
	Archived bool
	Private  bool
}
