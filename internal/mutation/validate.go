package mutation

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"fieldsync/internal/queue"
	"fieldsync/internal/services"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// FieldErrors maps a payload field to the rule it failed.
type FieldErrors map[string]string

func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+f[key])
	}
	return strings.Join(parts, ", ")
}

// Validate checks an order payload before it is sent or queued. The returned
// error wraps services.ErrValidation.
func Validate(payload queue.Payload) error {
	fields := FieldErrors{}
	if err := payloadValidator().Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return services.Wrap(services.ErrValidation, "submit", "validate payload", "", err)
		}
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = fe.Tag()
		}
	}
	// Totals may differ from the line sum; only signs are checked.
	if payload.Total.IsNegative() {
		fields["Total"] = "gte=0"
	}
	for i, product := range payload.Products {
		if product.Price.IsNegative() {
			fields["Products["+strconv.Itoa(i)+"].Price"] = "gte=0"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "submit", "validate payload", fields.String(), nil)
}

func fieldPath(namespace string) string {
	if idx := strings.IndexByte(namespace, '.'); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
