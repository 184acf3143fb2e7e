package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

var (
	orderStatuses   = []string{"pending", "confirmed", "processing", "shipped", "delivered", "cancelled", "refunded"}
	orderModes      = []string{"Delivery", "Takeaway"}
	investmentTypes = []string{"adoption", "gift"}
)

func registerCustomValidations() {
	validate.RegisterValidation("order_status", oneOf(orderStatuses))
	validate.RegisterValidation("order_mode", oneOf(orderModes))
	validate.RegisterValidation("investment_type", oneOf(investmentTypes))
}

func oneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "ne":
			errors[field] = "Value must not be " + err.Param()
		case "uuid":
			errors[field] = "Invalid UUID"
		case "order_status":
			errors[field] = "Invalid status. Must be one of: " + strings.Join(orderStatuses, ", ")
		case "order_mode":
			errors[field] = "Invalid mode. Must be Delivery or Takeaway"
		case "investment_type":
			errors[field] = "Invalid investment type. Must be: " + strings.Join(investmentTypes, " or ")
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
