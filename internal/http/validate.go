package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	return v
}

// fieldMessages maps a struct field name to the message shown when any of its
// rules fail.
type fieldMessages map[string]string

// check validates s and returns the message of the first failing field.
func check(s interface{}, messages fieldMessages) (string, bool) {
	err := validate.Struct(s)
	if err == nil {
		return "", true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := messages[verrs[0].StructField()]; ok {
			return msg, false
		}
		return verrs[0].Error(), false
	}
	return err.Error(), false
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,objectid"`
	Quantity  *int   `json:"quantity" validate:"omitempty,min=1,max=100"`
}

type updateQuantityRequest struct {
	ProductID string `json:"productId" validate:"required,objectid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100"`
}

type analyticsQuery struct {
	Period string `validate:"omitempty,oneof=7d 30d 90d"`
}

type abandonedQuery struct {
	Limit int `validate:"omitempty,min=1,max=100"`
}

const (
	msgInvalidProductID = "Valid product ID is required"
	msgQuantityRange    = "Quantity must be between 1 and 100"
	msgPeriod           = "Period must be one of: 7d, 30d, 90d"
	msgLimit            = "Limit must be between 1 and 100"
	msgInvalidBody      = "Invalid request body"
)

var cartItemMessages = fieldMessages{
	"ProductID": msgInvalidProductID,
	"Quantity":  msgQuantityRange,
}

var analyticsMessages = fieldMessages{"Period": msgPeriod}

var abandonedMessages = fieldMessages{"Limit": msgLimit}
