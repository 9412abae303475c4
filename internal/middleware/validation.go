package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	appvalidator "github.com/jwalitptl/retina-api/pkg/validator"
)

// RegisterBindingValidators installs the domain tags on gin's binding
// engine so ShouldBind understands them.
func RegisterBindingValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return appvalidator.RegisterCustom(v)
}
