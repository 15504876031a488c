package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   *validator.Validate
	translator ut.Translator
	initOnce   sync.Once
)

func setup() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")

	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(fmt.Sprintf("config: register translations: %v", err))
	}

	// Report fields the way they are spelled in the YAML file.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate reports every invalid field as one KindConfig error.
func (c Config) Validate() error {
	initOnce.Do(setup)

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := errors.AsType[validator.ValidationErrors](err)
	if !ok {
		return configErr("validate", err)
	}

	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.log.level"; drop the type name.
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		msgs = append(msgs, fmt.Errorf("%s: %s", field, fe.Translate(translator)))
	}

	return configErr("invalid configuration", errors.Join(msgs...))
}
