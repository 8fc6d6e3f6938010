package client

import (
	"encoding/json"
	"fmt"
)

const profileKey = "chat-profile"

// Profile is the locally chosen identity stamped onto every outgoing event.
// There are no accounts; renaming simply creates a new identity going
// forward.
type Profile struct {
	// Name is the display name.
	Name string `json:"name"`
	// Avatar is a data-URI or URL snapshot of the avatar image.
	Avatar string `json:"avatar"`
}

// IsSet reports whether a usable identity exists.
func (p Profile) IsSet() bool {
	return p.Name != ""
}

// ProfileStore persists the profile in client-side durable storage.
type ProfileStore struct {
	store Store
}

func NewProfileStore(store Store) *ProfileStore {
	return &ProfileStore{store: store}
}

// Load returns the stored profile, if any.
func (s *ProfileStore) Load() (Profile, bool, error) {
	raw, ok, err := s.store.Get(profileKey)
	if err != nil || !ok {
		return Profile{}, false, err
	}

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, false, fmt.Errorf("client: corrupt profile: %w", err)
	}
	return p, p.IsSet(), nil
}

// Save stores the profile.
func (s *ProfileStore) Save(p Profile) error {
	if !p.IsSet() {
		return fmt.Errorf("client: profile name must not be empty")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.store.Put(profileKey, string(data))
}

// Clear removes the stored profile.
func (s *ProfileStore) Clear() error {
	return s.store.Delete(profileKey)
}
