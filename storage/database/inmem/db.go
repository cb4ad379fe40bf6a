package inmemdb

import (
	"sync"

	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
)

// Tables are always locked in declaration order.
type (
	DB struct {
		user        *userTable
		university  *universityTable
		profile     *profileTable
		event       *eventTable
		participant *participantTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	universityTable struct {
		sync.RWMutex
		table   map[int]*university.University
		pkCount int
	}

	profileTable struct {
		sync.RWMutex
		table map[string]*profile.Profile
	}

	eventTable struct {
		sync.RWMutex
		table map[string]*event.Event
	}

	participantTable struct {
		sync.RWMutex
		table map[string]*event.Participant
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		university:  &universityTable{table: make(map[int]*university.University)},
		profile:     &profileTable{table: make(map[string]*profile.Profile)},
		event:       &eventTable{table: make(map[string]*event.Event)},
		participant: &participantTable{table: make(map[string]*event.Participant)},
	}
	return db, nil
}
