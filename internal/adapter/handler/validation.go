package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

var registerOnce sync.Once

// registerValidators adds the store's identifier formats as binding tags.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("product_code", func(fl validator.FieldLevel) bool {
			return domain.ValidProductCode(fl.Field().String())
		})
		_ = v.RegisterValidation("receipt_number", func(fl validator.FieldLevel) bool {
			return domain.ValidReceiptNumber(fl.Field().String())
		})
		_ = v.RegisterValidation("card_number", func(fl validator.FieldLevel) bool {
			return domain.ValidCardNumber(fl.Field().String())
		})
	})
}
