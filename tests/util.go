package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/alumni/core/event"
	"github.com/trezcool/alumni/core/profile"
	"github.com/trezcool/alumni/core/university"
	"github.com/trezcool/alumni/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateUniversity(t *testing.T, repo university.Repository, name string, isActive bool) university.University {
	now := time.Now().UTC()
	u, err := repo.CreateUniversity(context.Background(), university.University{
		Name:      name,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUniversity() failed: %v", err)
	}
	return u
}

func CreateProfile(t *testing.T, repo profile.Repository, p profile.Profile) profile.Profile {
	now := time.Now().UTC()
	if p.Status == "" {
		p.Status = profile.StatusPending
	}
	p.CreatedAt, p.UpdatedAt = now, now
	p, err := repo.CreateProfile(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}
	return p
}

func CreateEvent(t *testing.T, repo event.Repository, title string, startsAt time.Time, capacity int, status ...string) event.Event {
	now := time.Now().UTC()
	evt := event.Event{
		Slug:      title,
		Title:     title,
		StartsAt:  startsAt.UTC(),
		Status:    event.StatusUpcoming,
		Capacity:  capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(status) > 0 {
		evt.Status = status[0]
	}
	evt, err := repo.CreateEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("CreateEvent() failed: %v", err)
	}
	return evt
}

func CreateParticipant(t *testing.T, repo event.Repository, eventID, userID, status string, registeredAt ...time.Time) event.Participant {
	tstamp := time.Now().UTC()
	if len(registeredAt) > 0 {
		tstamp = registeredAt[0].UTC()
	}
	p, err := repo.CreateParticipant(context.Background(), event.Participant{
		EventID:      eventID,
		UserID:       userID,
		Status:       status,
		RegisteredAt: tstamp,
		UpdatedAt:    tstamp,
	})
	if err != nil {
		t.Fatalf("CreateParticipant() failed: %v", err)
	}
	return p
}
