package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"parkwise/internal/entities"
)

// UserRepository covers the backend's auth and profile endpoints.
// Vehicle mutations return the user's full, updated vehicle list.
type UserRepository interface {
	Login(ctx context.Context, creds entities.Credentials) (*entities.User, error)
	Register(ctx context.Context, reg entities.Registration) (*entities.User, error)
	Profile(ctx context.Context, token string) (*entities.User, error)
	Vehicles(ctx context.Context, token string) ([]entities.Vehicle, error)
	AddVehicle(ctx context.Context, token string, v entities.Vehicle) ([]entities.Vehicle, error)
	UpdateVehicle(ctx context.Context, token, vehicleID string, v entities.Vehicle) ([]entities.Vehicle, error)
	SetDefaultVehicle(ctx context.Context, token, vehicleID string) ([]entities.Vehicle, error)
	DeleteVehicle(ctx context.Context, token, vehicleID string) ([]entities.Vehicle, error)
}

type userRepository struct {
	client *BackendClient
}

func NewUserRepository(client *BackendClient) UserRepository {
	return &userRepository{client: client}
}

func (r *userRepository) Login(ctx context.Context, creds entities.Credentials) (*entities.User, error) {
	var user entities.User
	if err := r.client.Do(ctx, http.MethodPost, "/auth/login", "", creds, &user); err != nil {
		return nil, fmt.Errorf("error logging in: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Register(ctx context.Context, reg entities.Registration) (*entities.User, error) {
	var user entities.User
	if err := r.client.Do(ctx, http.MethodPost, "/auth/register", "", reg, &user); err != nil {
		return nil, fmt.Errorf("error registering user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Profile(ctx context.Context, token string) (*entities.User, error) {
	var user entities.User
	if err := r.client.Do(ctx, http.MethodGet, "/users/profile", token, nil, &user); err != nil {
		return nil, fmt.Errorf("error fetching profile: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Vehicles(ctx context.Context, token string) ([]entities.Vehicle, error) {
	return r.vehicles(ctx, http.MethodGet, "/users/profile/vehicles", token, nil)
}

func (r *userRepository) AddVehicle(ctx context.Context, token string, v entities.Vehicle) ([]entities.Vehicle, error) {
	v.ID = ""
	return r.vehicles(ctx, http.MethodPost, "/users/profile/vehicles", token, v)
}

func (r *userRepository) UpdateVehicle(ctx context.Context, token, vehicleID string, v entities.Vehicle) ([]entities.Vehicle, error) {
	v.ID = vehicleID
	return r.vehicles(ctx, http.MethodPut, vehiclePath(vehicleID), token, v)
}

func (r *userRepository) SetDefaultVehicle(ctx context.Context, token, vehicleID string) ([]entities.Vehicle, error) {
	body := map[string]bool{"isDefault": true}
	return r.vehicles(ctx, http.MethodPut, vehiclePath(vehicleID), token, body)
}

func (r *userRepository) DeleteVehicle(ctx context.Context, token, vehicleID string) ([]entities.Vehicle, error) {
	return r.vehicles(ctx, http.MethodDelete, vehiclePath(vehicleID), token, nil)
}

func (r *userRepository) vehicles(ctx context.Context, method, path, token string, body any) ([]entities.Vehicle, error) {
	var list []entities.Vehicle
	if err := r.client.Do(ctx, method, path, token, body, &list); err != nil {
		return nil, fmt.Errorf("error managing vehicles: %w", err)
	}
	if list == nil {
		list = []entities.Vehicle{}
	}
	return list, nil
}

func vehiclePath(id string) string {
	return "/users/profile/vehicles/" + url.PathEscape(id)
}
