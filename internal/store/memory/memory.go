// Package memory implementa los puertos de repository en memoria.
// Para desarrollo y tests: misma semántica que pg, sin durabilidad.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/clave/internal/domain/repository"
)

// Store agrupa los repositorios en memoria. Thread-safe.
type Store struct {
	mu    sync.Mutex
	users map[string]*repository.User              // id -> user
	links map[string]*repository.SocialAccountLink // id -> link
}

// New crea un Store vacío.
func New() *Store {
	return &Store{
		users: make(map[string]*repository.User),
		links: make(map[string]*repository.SocialAccountLink),
	}
}

// Users devuelve el repositorio de usuarios.
func (s *Store) Users() repository.UserRepository { return (*userRepo)(s) }

// Social devuelve el repositorio de links sociales.
func (s *Store) Social() repository.SocialAccountRepository { return (*socialRepo)(s) }

type userRepo Store

func (r *userRepo) findByEmail(email string) *repository.User {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.findByEmail(email); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByID(_ context.Context, userID string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) Create(_ context.Context, input repository.CreateUserInput) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(input)
}

func (r *userRepo) create(input repository.CreateUserInput) (*repository.User, error) {
	if r.findByEmail(input.Email) != nil {
		return nil, repository.ErrConflict
	}
	now := time.Now()
	u := &repository.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Name:      input.Name,
		Picture:   input.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.PasswordHash != "" {
		h := input.PasswordHash
		u.PasswordHash = &h
	}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetOrCreate(_ context.Context, input repository.CreateUserInput) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.findByEmail(input.Email); u != nil {
		cp := *u
		return &cp, nil
	}
	return r.create(input)
}

func (r *userRepo) SoftDelete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok || u.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	u.UpdatedAt = now
	return nil
}

type socialRepo Store

func (r *socialRepo) GetActive(_ context.Context, provider, socialID string) (*repository.SocialAccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l := r.findActive(provider, socialID); l != nil {
		cp := *l
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (r *socialRepo) findActive(provider, socialID string) *repository.SocialAccountLink {
	for _, l := range r.links {
		if l.IsActive && l.Provider == provider && l.SocialID == socialID {
			return l
		}
	}
	return nil
}

func (r *socialRepo) GetActiveByUser(_ context.Context, userID, provider string) (*repository.SocialAccountLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.IsActive && l.UserID == userID && l.Provider == provider {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *socialRepo) Upsert(_ context.Context, input repository.UpsertSocialLinkInput) (*repository.SocialAccountLink, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// la carrera se resuelve acá mismo: el lock serializa
	if l := r.findActive(input.Provider, input.SocialID); l != nil {
		cp := *l
		return &cp, false, nil
	}

	ur := (*userRepo)(r)
	user := ur.findByEmail(input.Email)
	if user == nil {
		var err error
		user, err = ur.create(repository.CreateUserInput{
			Email:   input.Email,
			Name:    input.Name,
			Picture: input.Picture,
		})
		if err != nil {
			return nil, false, err
		}
	}

	now := time.Now()

	// reactivar link inactivo si existe
	for _, l := range r.links {
		if !l.IsActive && l.Provider == input.Provider && l.SocialID == input.SocialID {
			l.IsActive = true
			l.UserID = user.ID
			l.Email = input.Email
			l.Name = input.Name
			l.Picture = input.Picture
			l.UpdatedAt = now
			cp := *l
			return &cp, true, nil
		}
	}

	l := &repository.SocialAccountLink{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Provider:  input.Provider,
		SocialID:  input.SocialID,
		Email:     input.Email,
		Name:      input.Name,
		Picture:   input.Picture,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.links[l.ID] = l
	cp := *l
	return &cp, true, nil
}

func (r *socialRepo) Deactivate(_ context.Context, linkID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[linkID]
	if !ok || !l.IsActive {
		return repository.ErrNotFound
	}
	l.IsActive = false
	l.UpdatedAt = time.Now()
	return nil
}
