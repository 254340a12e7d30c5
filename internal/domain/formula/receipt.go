package formula

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who performed an installation.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string `json:"hostname"`
	// Username is the system user who triggered the action.
	Username string `json:"username"`
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Receipt records one installed release and every path it placed.
type Receipt struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	SHA256      string    `json:"sha256"`
	Files       []string  `json:"files"`
	InstalledAt time.Time `json:"installed_at"`
	InstalledBy *Actor    `json:"installed_by,omitempty"`
}

// NewReceipt starts a receipt for d with a fresh ID.
func NewReceipt(d *Descriptor, actor *Actor, files []string) *Receipt {
	return &Receipt{
		ID:          uuid.New(),
		Name:        d.Name,
		Version:     d.Version,
		SHA256:      d.SHA256,
		Files:       slices.Clone(files),
		InstalledAt: time.Now().UTC(),
		InstalledBy: actor.Clone(),
	}
}

// Ref returns name@version.
func (r *Receipt) Ref() string {
	return r.Name + "@" + r.Version
}

// Owns reports whether the receipt lists path.
func (r *Receipt) Owns(path string) bool {
	return slices.Contains(r.Files, path)
}
