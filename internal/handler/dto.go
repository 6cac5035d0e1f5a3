package handler

import (
	"net/mail"
	"strings"
	"time"

	"github.com/mmeshcher/parceltrack/internal/account"
	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

type addressDTO struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
}

type deliveryRequest struct {
	RecipientName     string     `json:"recipient_name"`
	RecipientDocument string     `json:"recipient_document"`
	Address           addressDTO `json:"address"`
	SenderName        string     `json:"sender_name"`
	Volumes           int        `json:"volumes"`
	WeightKg          float64    `json:"weight_kg"`
}

// validate проверяет обязательные поля и возвращает текст первой ошибки.
func (req deliveryRequest) validate() string {
	switch {
	case strings.TrimSpace(req.RecipientName) == "":
		return "recipient_name is required"
	case req.Volumes < 0:
		return "volumes must not be negative"
	case req.WeightKg < 0:
		return "weight_kg must not be negative"
	}
	return ""
}

func (req deliveryRequest) details() model.DeliveryDetails {
	return model.DeliveryDetails{
		RecipientName:     strings.TrimSpace(req.RecipientName),
		RecipientDocument: strings.TrimSpace(req.RecipientDocument),
		Address: model.Address{
			Street:     req.Address.Street,
			Number:     req.Address.Number,
			Complement: req.Address.Complement,
			District:   req.Address.District,
			City:       req.Address.City,
		},
		SenderName: strings.TrimSpace(req.SenderName),
		Volumes:    req.Volumes,
		WeightKg:   req.WeightKg,
	}
}

type movementResponse struct {
	Status string `json:"status"`
	At     string `json:"at"`
	Author string `json:"author"`
	Note   string `json:"note,omitempty"`
}

type deliveryResponse struct {
	OrderNumber       string             `json:"order_number"`
	RecipientName     string             `json:"recipient_name"`
	RecipientDocument string             `json:"recipient_document,omitempty"`
	Address           addressDTO         `json:"address"`
	SenderName        string             `json:"sender_name"`
	Volumes           int                `json:"volumes"`
	WeightKg          float64            `json:"weight_kg"`
	Status            string             `json:"status"`
	DriverID          string             `json:"driver_id,omitempty"`
	DriverName        string             `json:"driver_name,omitempty"`
	CreatedAt         string             `json:"created_at"`
	Movements         []movementResponse `json:"movements,omitempty"`
}

func newDeliveryResponse(d *model.Delivery) deliveryResponse {
	resp := deliveryResponse{
		OrderNumber:       d.OrderNumber,
		RecipientName:     d.RecipientName,
		RecipientDocument: d.RecipientDocument,
		Address: addressDTO{
			Street:     d.Address.Street,
			Number:     d.Address.Number,
			Complement: d.Address.Complement,
			District:   d.Address.District,
			City:       d.Address.City,
		},
		SenderName: d.SenderName,
		Volumes:    d.Volumes,
		WeightKg:   d.WeightKg,
		Status:     string(d.Status),
		DriverID:   d.DriverID,
		DriverName: d.DriverName,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
	for _, m := range d.Movements {
		resp.Movements = append(resp.Movements, movementResponse{
			Status: string(m.Status),
			At:     m.At.Format(time.RFC3339),
			Author: m.Author,
			Note:   m.Note,
		})
	}
	return resp
}

type dispatchRequest struct {
	DriverID string   `json:"driver_id"`
	Orders   []string `json:"orders"`
}

type dispatchResponse struct {
	Errors []string `json:"errors"`
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expires_at"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
}

type licenseDTO struct {
	Category string `json:"category"`
	Number   string `json:"number"`
	Vehicle  string `json:"vehicle"`
}

type accountRequest struct {
	Name            string     `json:"name"`
	Document        string     `json:"document"`
	RG              string     `json:"rg"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Login           string     `json:"login"`
	Password        string     `json:"password"`
	ConfirmPassword string     `json:"confirm_password"`
	IsActive        *bool      `json:"is_active"`
	License         licenseDTO `json:"license"`
}

// validate проверяет поля учётной записи. При создании пароль обязателен.
func (req accountRequest) validate(kind model.AccountKind, creating bool) string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "name is required"
	case strings.TrimSpace(req.Document) == "":
		return "document is required"
	case !validation.IsValidCPF(req.Document):
		return "document is not a valid CPF"
	case strings.TrimSpace(req.Email) == "":
		return "email is required"
	case !validEmail(req.Email):
		return "email is invalid"
	case strings.TrimSpace(req.Login) == "":
		return "login is required"
	case creating && req.Password == "":
		return "password is required"
	case req.Password != "" && req.ConfirmPassword != "" && req.Password != req.ConfirmPassword:
		return "passwords do not match"
	}

	if kind == model.AccountKindDriver {
		switch {
		case strings.TrimSpace(req.License.Category) == "":
			return "license category is required"
		case !isLicenseNumber(req.License.Number):
			return "license number must have 11 digits"
		case strings.TrimSpace(req.License.Vehicle) == "":
			return "vehicle is required"
		}
	}
	return ""
}

func (req accountRequest) profile() account.Profile {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return account.Profile{
		Name:     req.Name,
		Document: strings.TrimSpace(req.Document),
		RG:       req.RG,
		Email:    req.Email,
		Phone:    req.Phone,
		Login:    req.Login,
		Password: req.Password,
		IsActive: active,
		License: model.DriverLicense{
			Category: strings.TrimSpace(req.License.Category),
			Number:   req.License.Number,
			Vehicle:  strings.TrimSpace(req.License.Vehicle),
		},
	}
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil && addr.Name == "" && strings.Contains(addr.Address, "@")
}

func isLicenseNumber(s string) bool {
	return len(s) == 11 && validation.DigitsOnly(s) == s
}

type accountResponse struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Name      string      `json:"name"`
	Document  string      `json:"document"`
	RG        string      `json:"rg,omitempty"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone,omitempty"`
	Login     string      `json:"login"`
	IsActive  bool        `json:"is_active"`
	CreatedAt string      `json:"created_at"`
	License   *licenseDTO `json:"license,omitempty"`
}

func newAccountResponse(a *model.Account) accountResponse {
	resp := accountResponse{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Name:      a.Name,
		Document:  a.Document,
		RG:        a.RG,
		Email:     a.Email,
		Phone:     a.Phone,
		Login:     a.Login,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.Kind == model.AccountKindDriver {
		resp.License = &licenseDTO{
			Category: a.License.Category,
			Number:   a.License.Number,
			Vehicle:  a.License.Vehicle,
		}
	}
	return resp
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}
