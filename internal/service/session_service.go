package service

import (
	"context"
	"strings"

	"parkwise/internal/auth"
	"parkwise/internal/entities"
	"parkwise/internal/logger"
	"parkwise/internal/repository"
)

// SessionService signs users in and out and manages their saved vehicles.
type SessionService struct {
	users       repository.UserRepository
	sessions    *auth.Manager
	defaultLang string
	log         *logger.Logger
}

func NewSessionService(users repository.UserRepository, sessions *auth.Manager, defaultLang string, log *logger.Logger) *SessionService {
	return &SessionService{
		users:       users,
		sessions:    sessions,
		defaultLang: defaultLang,
		log:         log,
	}
}

// LoginEmail maps a phone-number login to the backend's derived email address.
func LoginEmail(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return identifier
	}
	return identifier + syntheticEmailDomain
}

// NormalizePlate trims and upper-cases a number plate.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

func (s *SessionService) language(lang string) string {
	switch lang {
	case "vi", "en":
		return lang
	default:
		return s.defaultLang
	}
}

func (s *SessionService) Login(ctx context.Context, identifier, password, lang string) (*auth.Session, error) {
	user, err := s.users.Login(ctx, entities.Credentials{
		Email:    LoginEmail(identifier),
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(ctx, user, s.language(lang))
}

func (s *SessionService) Register(ctx context.Context, name, phone, password, lang string) (*auth.Session, error) {
	phone = strings.TrimSpace(phone)
	user, err := s.users.Register(ctx, entities.Registration{
		Name:     strings.TrimSpace(name),
		Email:    phone + syntheticEmailDomain,
		Phone:    phone,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	return s.sessions.Open(ctx, user, s.language(lang))
}

// Logout closes the session; the manager's close hooks tear down its pages.
func (s *SessionService) Logout(ctx context.Context, session *auth.Session) {
	s.sessions.Close(ctx, session)
}

func (s *SessionService) Vehicles(ctx context.Context, session *auth.Session) ([]entities.Vehicle, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}
	list, err := s.users.Vehicles(ctx, token)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateVehicles(ctx, session, list)
	return list, nil
}

func (s *SessionService) AddVehicle(ctx context.Context, session *auth.Session, v entities.Vehicle) ([]entities.Vehicle, error) {
	v.NumberPlate = NormalizePlate(v.NumberPlate)
	v.Nickname = strings.TrimSpace(v.Nickname)
	return s.mutateVehicles(ctx, session, func(token string) ([]entities.Vehicle, error) {
		return s.users.AddVehicle(ctx, token, v)
	})
}

func (s *SessionService) UpdateVehicle(ctx context.Context, session *auth.Session, id string, v entities.Vehicle) ([]entities.Vehicle, error) {
	v.NumberPlate = NormalizePlate(v.NumberPlate)
	v.Nickname = strings.TrimSpace(v.Nickname)
	return s.mutateVehicles(ctx, session, func(token string) ([]entities.Vehicle, error) {
		return s.users.UpdateVehicle(ctx, token, id, v)
	})
}

func (s *SessionService) SetDefaultVehicle(ctx context.Context, session *auth.Session, id string) ([]entities.Vehicle, error) {
	return s.mutateVehicles(ctx, session, func(token string) ([]entities.Vehicle, error) {
		return s.users.SetDefaultVehicle(ctx, token, id)
	})
}

func (s *SessionService) DeleteVehicle(ctx context.Context, session *auth.Session, id string) ([]entities.Vehicle, error) {
	return s.mutateVehicles(ctx, session, func(token string) ([]entities.Vehicle, error) {
		return s.users.DeleteVehicle(ctx, token, id)
	})
}

func (s *SessionService) mutateVehicles(ctx context.Context, session *auth.Session, call func(token string) ([]entities.Vehicle, error)) ([]entities.Vehicle, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}
	list, err := call(token)
	if err != nil {
		return nil, err
	}
	s.sessions.UpdateVehicles(ctx, session, list)
	return list, nil
}
