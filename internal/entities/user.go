package entities

type Vehicle struct {
	ID          string `json:"_id,omitempty"`
	NumberPlate string `json:"numberPlate" validate:"required,min=4,max=15"`
	Type        string `json:"type" validate:"required,vehicle_type"`
	Nickname    string `json:"nickname,omitempty" validate:"max=50"`
	IsDefault   bool   `json:"isDefault"`
}

type Profile struct {
	Vehicles []Vehicle `json:"vehicles"`
}

type User struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone,omitempty"`
	Role    string  `json:"role,omitempty"`
	Token   string  `json:"token,omitempty"`
	Profile Profile `json:"profile"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone" validate:"required,min=8,max=15"`
	Password string `json:"password" validate:"required,min=6"`
}
