package billing

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/kolisoft/makuta/core"
)

var (
	billingPeriodTag  = "billingperiod"
	billingPeriodText = "invalid billing period"

	paymentModeTag  = "paymentmode"
	paymentModeText = "invalid payment mode"
)

// RegisterValidators adds the billing validation tags to validate.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(billingPeriodTag, oneOfValidation(AllPeriods))
	core.RegisterCustomTranslation(validate, translator, billingPeriodTag, billingPeriodText)

	_ = validate.RegisterValidation(paymentModeTag, oneOfValidation(AllPaymentModes))
	core.RegisterCustomTranslation(validate, translator, paymentModeTag, paymentModeText)
}

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, a := range allowed {
			if val == a {
				return true
			}
		}
		return false
	}
}
