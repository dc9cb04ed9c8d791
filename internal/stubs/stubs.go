// Package stubs holds the accounts a fresh dev server starts with.
package stubs

import "svyaz/internal/models"

var Users = []models.Profile{
	{ID: "alice", Username: "Alice", ProfilePicture: "https://api.dicebear.com/7.x/avataaars/svg?seed=Alice"},
	{ID: "bob", Username: "Bob", ProfilePicture: "https://api.dicebear.com/7.x/avataaars/svg?seed=Bob"},
	{ID: "charlie", Username: "Charlie", ProfilePicture: "https://api.dicebear.com/7.x/avataaars/svg?seed=Charlie"},
}

type userStore interface {
	User(id string) (models.Profile, error)
	UpsertUser(p models.Profile) error
}

// Seed stores the stub accounts that do not exist yet and returns how many
// were added.
func Seed(store userStore) (int, error) {
	added := 0
	for _, u := range Users {
		if _, err := store.User(u.ID); err == nil {
			continue
		}
		if err := store.UpsertUser(u); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
