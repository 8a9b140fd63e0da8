package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/lockstep/pkg/domain"
)

// ValidateTransfers checks that every declared transfer target is registered.
// Transfers are resolved by name only when they run, so a typo would otherwise surface
// as a failed transfer long after registration.
func (s *Scheduler) ValidateTransfers() error {
	s.actionsMu.RLock()
	defer s.actionsMu.RUnlock()

	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		for _, target := range s.actions[name].Transfers {
			if _, ok := s.actions[target]; !ok {
				problems = append(problems, fmt.Sprintf("%s -> %s", name, target))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %d unregistered transfer target(s):\n- %s",
			domain.ErrUnknownAction, len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}
