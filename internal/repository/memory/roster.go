package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fathima-sithara/school-chat/internal/models"
)

// Roster is a fixed user directory.
type Roster struct {
	mu      sync.RWMutex
	byRole  map[models.Role][]string
	courses map[string][]string
}

func NewRoster() *Roster {
	return &Roster{byRole: make(map[models.Role][]string), courses: make(map[string][]string)}
}

func (r *Roster) Add(role models.Role, ids ...string) *Roster {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRole[role] = append(r.byRole[role], ids...)
	return r
}

func (r *Roster) Enroll(courseID string, studentIDs ...string) *Roster {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses[courseID] = append(r.courses[courseID], studentIDs...)
	return r
}

func (r *Roster) UserIDsByRole(_ context.Context, role models.Role) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !role.IsParticipant() {
		return nil, fmt.Errorf("no roster for role %q", role)
	}
	return append([]string(nil), r.byRole[role]...), nil
}

func (r *Roster) StudentIDsByCourse(_ context.Context, courseID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.courses[courseID]...), nil
}
